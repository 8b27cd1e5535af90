// Package registry maintains the generated legal registry: the JSON document
// consumed by the frontend that binds every tracked article to its most
// recently verified text.
package registry

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coolbeans/legisync/pkg/article"
)

// SchemaVersion is written to metadata.version.
const SchemaVersion = "2.3.0"

const (
	// SourceAPI marks entries whose text came from the Légifrance API.
	SourceAPI = "LEGIFRANCE"

	// SourceFallback marks entries whose text was scraped from the public site.
	SourceFallback = "FALLBACK"
)

// validTextLength is the length a text must exceed for the entry to be valid.
const validTextLength = 20

// Entry is one article of the registry file. Fields are declared in
// alphabetical order so the encoder writes keys sorted, as the file has always
// been written. Nullable fields are pointers.
type Entry struct {
	Checksum     *string        `json:"checksum"`
	Code         article.Code   `json:"code"`
	ID           string         `json:"id"`
	IsValid      bool           `json:"isValid"`
	Label        string         `json:"label"`
	LastModified *string        `json:"lastModified"`
	LastVerified *string        `json:"lastVerified"`
	Priority     int            `json:"priority"`
	Source       string         `json:"source"`
	Status       article.Status `json:"status"`
	Text         *string        `json:"text"`
	URL          *string        `json:"url"`
	WordCount    int            `json:"wordCount"`
}

// Valid reports whether the entry holds validated text of an in-force article.
func (entry *Entry) Valid() bool {
	return entry != nil && entry.IsValid && entry.Text != nil && *entry.Text != ""
}

// ChecksumValue returns the checksum or "".
func (entry *Entry) ChecksumValue() string {
	if entry == nil || entry.Checksum == nil {
		return ""
	}
	return *entry.Checksum
}

// TextValue returns the text or "".
func (entry *Entry) TextValue() string {
	if entry == nil || entry.Text == nil {
		return ""
	}
	return *entry.Text
}

// Metadata summarizes the registry. Fields are in alphabetical order.
type Metadata struct {
	Checksum      string  `json:"checksum"`
	Coverage      float64 `json:"coverage"`
	LastUpdated   string  `json:"lastUpdated"`
	TotalArticles int     `json:"totalArticles"`
	ValidArticles int     `json:"validArticles"`
	Version       string  `json:"version"`
}

// Registry is the whole file: articles keyed by canonical number, plus metadata.
type Registry struct {
	Articles map[string]Entry `json:"articles"`
	Metadata Metadata         `json:"metadata"`
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{Articles: make(map[string]Entry), Metadata: Metadata{Version: SchemaVersion}}
}

// Lookup returns the entry of a number in any spelling.
func (legalRegistry *Registry) Lookup(number string) (Entry, bool) {
	if legalRegistry == nil {
		return Entry{}, false
	}
	entry, found := legalRegistry.Articles[article.Normalize(number)]
	return entry, found
}

// Numbers returns the article numbers sorted by descending priority, then number.
func (legalRegistry *Registry) Numbers() []string {
	numbers := make([]string, 0, len(legalRegistry.Articles))
	for number := range legalRegistry.Articles {
		numbers = append(numbers, number)
	}
	sort.Slice(numbers, func(i, j int) bool {
		left, right := legalRegistry.Articles[numbers[i]], legalRegistry.Articles[numbers[j]]
		if left.Priority != right.Priority {
			return left.Priority > right.Priority
		}
		return numbers[i] < numbers[j]
	})
	return numbers
}

// Clone returns a deep copy of the article map with the same metadata.
func (legalRegistry *Registry) Clone() *Registry {
	cloned := New()
	if legalRegistry == nil {
		return cloned
	}
	for number, entry := range legalRegistry.Articles {
		cloned.Articles[number] = entry
	}
	cloned.Metadata = legalRegistry.Metadata
	return cloned
}

// NewEntry binds a resolved article to its tracking definition.
func NewEntry(definition Definition, resolved *article.Resolved, verifiedAt time.Time) Entry {
	text := resolved.Text
	checksum := resolved.Checksum
	if checksum == "" {
		checksum = article.Checksum(text)
	}
	verified := verifiedAt.Format(time.DateOnly)

	source := SourceAPI
	if resolved.Source == article.SourceFallback {
		source = SourceFallback
	}

	return Entry{
		Checksum:     &checksum,
		Code:         definition.Code,
		ID:           definition.Canonical(),
		IsValid:      utf8.RuneCountInString(text) > validTextLength && resolved.InForce(),
		Label:        definition.DisplayLabel(),
		LastModified: optional(resolved.LastModified),
		LastVerified: &verified,
		Priority:     definition.Priority,
		Source:       source,
		Status:       resolved.Status,
		Text:         &text,
		URL:          optional(resolved.URL),
		WordCount:    article.WordCount(text),
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// DefaultLabel builds the display label of an article, e.g.
// "Code de la consommation, art. L. 217-3".
func DefaultLabel(code article.Code, number string) string {
	canonical := article.Normalize(number)
	if prefix, rest, found := strings.Cut(canonical, "."); found && prefix != "" && isLetters(prefix) {
		canonical = prefix + ". " + rest
	}
	return code.Name() + ", art. " + canonical
}

func isLetters(text string) bool {
	for _, character := range text {
		if character < 'A' || character > 'Z' {
			return false
		}
	}
	return true
}
