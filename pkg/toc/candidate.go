package toc

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coolbeans/legisync/pkg/article"
)

// ArticleIDPrefix marks provider identifiers that denote an article version.
const ArticleIDPrefix = "LEGIARTI"

var (
	idFields     = []string{"id", "cid", "articleId", "article_id"}
	numberFields = []string{"num", "numero"}
	titleFields  = []string{"titre", "title", "libelle"}
	dateFields   = []string{"dateDebutVersion", "dateDebut"}
)

// Candidate is one article version found in a table of contents. Etat is the
// provider's raw state; Status reads an empty Etat as in force.
type Candidate struct {
	UpstreamID    string
	Number        string
	Etat          string
	Status        article.Status
	EffectiveDate time.Time
	Raw           map[string]any
}

// ArticleNode reports whether object describes an article, that is, whether it
// carries both a LEGIARTI identifier and a recognizable number.
func ArticleNode(object map[string]any) (Candidate, bool) {
	upstreamID := firstArticleID(object)
	if upstreamID == "" {
		return Candidate{}, false
	}
	number, found := NumberOf(object)
	if !found {
		return Candidate{}, false
	}

	etat, _ := object["etat"].(string)
	return Candidate{
		UpstreamID:    upstreamID,
		Number:        number,
		Etat:          etat,
		Status:        article.StatusFromEtat(etat),
		EffectiveDate: EffectiveDate(object),
		Raw:           object,
	}, true
}

func firstArticleID(object map[string]any) string {
	for _, field := range idFields {
		if value, ok := object[field].(string); ok && strings.HasPrefix(value, ArticleIDPrefix) {
			return value
		}
	}
	return ""
}

// NumberOf extracts the canonical article number of a node. The explicit
// number fields are tried first, then computedNums, then title-like fields.
func NumberOf(object map[string]any) (string, bool) {
	for _, field := range numberFields {
		if value, ok := object[field].(string); ok {
			if canonical := article.Normalize(value); canonical != "" {
				return canonical, true
			}
		}
	}
	if computed, ok := object["computedNums"].([]any); ok && len(computed) > 0 {
		if value, ok := computed[0].(string); ok {
			if canonical := article.Normalize(value); canonical != "" {
				return canonical, true
			}
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

// EffectiveDate reads the version start date of a node. The provider sends
// either epoch milliseconds or an ISO date. Zero when absent or unreadable.
func EffectiveDate(object map[string]any) time.Time {
	for _, field := range dateFields {
		if parsed, ok := parseDate(object[field]); ok {
			return parsed
		}
	}
	return time.Time{}
}

func parseDate(value any) (time.Time, bool) {
	switch typed := value.(type) {
	case json.Number:
		if millis, err := typed.Int64(); err == nil {
			return time.UnixMilli(millis).UTC(), true
		}
		if millis, err := typed.Float64(); err == nil {
			return time.UnixMilli(int64(millis)).UTC(), true
		}
	case float64:
		return time.UnixMilli(int64(typed)).UTC(), true
	case int64:
		return time.UnixMilli(typed).UTC(), true
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return time.Time{}, false
		}
		if millis, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return time.UnixMilli(millis).UTC(), true
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed.UTC(), true
			}
		}
		if len(trimmed) >= 10 {
			if parsed, err := time.Parse("2006-01-02", trimmed[:10]); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// Rank orders candidates from most to least preferred: versions explicitly
// marked in force first, then versions without a state, then the rest; within
// a tier, latest effective date first, then document order. The input slice is
// not modified.
func Rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		leftTier, rightTier := stateTier(ranked[i]), stateTier(ranked[j])
		if leftTier != rightTier {
			return leftTier > rightTier
		}
		return ranked[i].EffectiveDate.After(ranked[j].EffectiveDate)
	})
	return ranked
}

func stateTier(candidate Candidate) int {
	switch {
	case candidate.Status != article.StatusInForce:
		return 0
	case strings.TrimSpace(candidate.Etat) == "":
		return 1
	default:
		return 2
	}
}

// Best returns the preferred candidate, or false for an empty list.
func Best(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return Rank(candidates)[0], true
}
