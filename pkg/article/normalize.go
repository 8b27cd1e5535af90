package article

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var dashReplacer = strings.NewReplacer(
	"—", "-", // em dash
	"–", "-", // en dash
	"‒", "-", // figure dash
	"‑", "-", // non-breaking hyphen
	"‐", "-",
	"−", "-", // minus sign
)

var (
	reWhitespace     = regexp.MustCompile(`\s+`)
	reArticleWord    = regexp.MustCompile(`^(?:ARTICLES?|ARTS?\.?)\s*`)
	reLetterPrefix   = regexp.MustCompile(`^([A-Z]{1,2})\.?(\d)`)
	reDigitDotDigit  = regexp.MustCompile(`(\d)\.(\d)`)
	reTitleNumber    = regexp.MustCompile(`(?:^|[^A-Z0-9])([A-Z]{1,2})?\s*\.?\s*(\d+(?:\s*[-.]\s*\d+)*)`)
	reTitleArticleKw = regexp.MustCompile(`\b(?:ARTICLES?|ARTS?\.?)\s*`)
)

// maxNormalizePasses bounds the fixed-point loop in Normalize. Every pass that
// changes its input makes it shorter, so real input settles in two or three.
const maxNormalizePasses = 8

// Normalize canonicalizes an article number: "l217-3", "L. 217-3" and
// "Article L.217–3" all become "L.217-3". It never fails; unparseable input
// comes back in its best-effort cleaned form. Normalize is idempotent: a
// prefix word that only appears once spaces are removed ("A RT5") is stripped
// on a further pass.
func Normalize(raw string) string {
	cleaned := raw
	for pass := 0; pass < maxNormalizePasses; pass++ {
		next := normalizeOnce(cleaned)
		if next == cleaned {
			break
		}
		cleaned = next
	}
	return cleaned
}

func normalizeOnce(raw string) string {
	cleaned := norm.NFKC.String(raw)
	cleaned = strings.ToUpper(strings.TrimSpace(cleaned))
	cleaned = dashReplacer.Replace(cleaned)
	cleaned = reWhitespace.ReplaceAllString(cleaned, " ")
	for reArticleWord.MatchString(cleaned) {
		stripped := reArticleWord.ReplaceAllString(cleaned, "")
		if stripped == cleaned {
			break
		}
		cleaned = stripped
	}
	cleaned = strings.TrimRight(cleaned, ".,;: ")
	cleaned = strings.ReplaceAll(cleaned, ". ", ".")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = reLetterPrefix.ReplaceAllString(cleaned, "$1.$2")
	for reDigitDotDigit.MatchString(cleaned) {
		cleaned = reDigitDotDigit.ReplaceAllString(cleaned, "$1-$2")
	}
	return cleaned
}

// Variants returns the canonical form of raw followed by degraded forms that
// some upstream endpoints expect, ordered from most to least specific and
// deduplicated: "L.217-3", "L217-3", "L 217-3", "217-3".
func Variants(raw string) []string {
	canonical := Normalize(raw)
	if canonical == "" {
		return nil
	}

	ordered := []string{canonical}
	if matches := reLetterPrefix.FindStringSubmatchIndex(canonical); matches != nil {
		prefix := canonical[matches[2]:matches[3]]
		rest := strings.TrimPrefix(canonical[matches[3]:], ".")
		ordered = append(ordered,
			prefix+rest,
			prefix+" "+rest,
			rest,
		)
	}

	seen := make(map[string]bool, len(ordered))
	variants := make([]string, 0, len(ordered))
	for _, variant := range ordered {
		if variant == "" || seen[variant] {
			continue
		}
		seen[variant] = true
		variants = append(variants, variant)
	}
	return variants
}

// ExtractNumber pulls the first recognizable article number out of a title-like
// string such as "Article L. 217-3" or "Art. 1641 (abrogé)". The result is in
// canonical form. Returns false when the text holds no article number.
func ExtractNumber(text string) (string, bool) {
	upper := strings.ToUpper(norm.NFKC.String(text))
	upper = dashReplacer.Replace(upper)
	upper = reTitleArticleKw.ReplaceAllString(upper, " ")

	matches := reTitleNumber.FindStringSubmatch(upper)
	if matches == nil {
		return "", false
	}

	candidate := matches[2]
	if matches[1] != "" {
		candidate = matches[1] + "." + candidate
	}
	canonical := Normalize(candidate)
	if canonical == "" {
		return "", false
	}
	return canonical, true
}
