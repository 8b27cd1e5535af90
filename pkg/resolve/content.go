package resolve

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coolbeans/legisync/pkg/article"
	"github.com/coolbeans/legisync/pkg/toc"
)

// MinTextLength is the shortest cleaned text accepted as an article body.
const MinTextLength = 20

var (
	textFields       = []string{"texteHtml", "texteArticle", "contenu", "content", "text", "texte", "value"}
	nestedTextFields = []string{"texteHtml", "text", "content", "value", "texte"}
	numberFields     = []string{"num", "numero", "numArticle"}
	titleFields      = []string{"titre", "title", "libelle"}

	reTag             = regexp.MustCompile(`<[^>]+>`)
	reSpaceBeforeLine = regexp.MustCompile(`[ \t\r\f\v]+\n`)
	reSpaceAfterLine  = regexp.MustCompile(`\n\s+`)
	reInlineSpace     = regexp.MustCompile(`[ \t]+`)
	reControl         = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f-\x{9f}]`)
)

// ArticleObject returns the article object of a consult answer: the value of
// its "article" key when that is an object, otherwise the answer itself.
func ArticleObject(answer map[string]any) map[string]any {
	if nested, ok := answer["article"].(map[string]any); ok {
		return nested
	}
	return answer
}

// ResolvedNumber reads the number an article object claims for itself.
func ResolvedNumber(object map[string]any) (string, bool) {
	for _, field := range numberFields {
		if value, ok := object[field].(string); ok && strings.TrimSpace(value) != "" {
			return article.Normalize(value), true
		}
	}
	for _, field := range titleFields {
		if value, ok := object[field].(string); ok {
			if canonical, found := article.ExtractNumber(value); found {
				return canonical, true
			}
		}
	}
	return "", false
}

// ExtractText picks the body of an article object and cleans it. Known content
// fields are tried in order; when none holds a long enough value, every string
// field made of several words is concatenated. Single-token values are
// identifiers, states or dates and are left out.
func ExtractText(object map[string]any) string {
	for _, field := range textFields {
		switch value := object[field].(type) {
		case string:
			if len(strings.TrimSpace(value)) > MinTextLength {
				return CleanText(value)
			}
		case map[string]any:
			for _, nestedField := range nestedTextFields {
				if nestedValue, ok := value[nestedField].(string); ok && len(strings.TrimSpace(nestedValue)) > MinTextLength {
					return CleanText(nestedValue)
				}
			}
		}
	}

	var parts []string
	for _, key := range sortedKeys(object) {
		if value, ok := object[key].(string); ok && strings.ContainsAny(strings.TrimSpace(value), " \t\n") {
			parts = append(parts, value)
		}
	}
	return CleanText(strings.Join(parts, "\n"))
}

// CleanText strips markup, unescapes entities, drops control characters and
// collapses whitespace while keeping line breaks.
func CleanText(raw string) string {
	cleaned := strings.ReplaceAll(raw, "\r\n", "\n")
	cleaned = reTag.ReplaceAllString(cleaned, "")
	cleaned = html.UnescapeString(cleaned)
	cleaned = strings.ReplaceAll(cleaned, "\u00a0", " ")
	cleaned = reControl.ReplaceAllString(cleaned, "")
	cleaned = reSpaceBeforeLine.ReplaceAllString(cleaned, "\n")
	cleaned = reSpaceAfterLine.ReplaceAllString(cleaned, "\n")
	cleaned = reInlineSpace.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// validate checks an article object against the requested canonical number and
// returns its cleaned text.
func validate(requested string, object map[string]any) (string, error) {
	if resolved, found := ResolvedNumber(object); found && resolved != requested {
		return "", fmt.Errorf("%w: requested %s, got %s", ErrNumberMismatch, requested, resolved)
	}
	text := ExtractText(object)
	if length := utf8.RuneCountInString(text); length < MinTextLength {
		return "", fmt.Errorf("%w: %d characters", ErrContentTooShort, length)
	}
	return text, nil
}

// buildResolved assembles a Resolved from a validated article object.
func buildResolved(identifier article.Identifier, object map[string]any, text, fallbackID string, source article.Source) *article.Resolved {
	upstreamID := objectID(object)
	if upstreamID == "" {
		upstreamID = fallbackID
	}
	etat, _ := object["etat"].(string)

	var lastModified string
	if effective := toc.EffectiveDate(object); !effective.IsZero() {
		lastModified = effective.Format(time.DateOnly)
	}

	return &article.Resolved{
		Code:         identifier.Code,
		Number:       identifier.Canonical(),
		UpstreamID:   upstreamID,
		Text:         text,
		Status:       article.StatusFromEtat(etat),
		LastModified: lastModified,
		Source:       source,
		URL:          article.Permalink(upstreamID),
		Checksum:     article.Checksum(text),
		WordCount:    article.WordCount(text),
	}
}

func objectID(object map[string]any) string {
	for _, field := range []string{"id", "cid"} {
		if value, ok := object[field].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func hasContent(object map[string]any) bool {
	if objectID(object) != "" {
		return true
	}
	_, found := object["texteHtml"]
	return found
}

func sortedKeys(object map[string]any) []string {
	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
