// Package article defines the legal article data model shared by the resolution
// pipeline and the registry: legal codes, article identifiers, effective states,
// resolution sources, and the canonical article number form used for matching.
package article

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Code identifies a French legal code tracked by the registry.
type Code string

const (
	// CodeConsommation is the Code de la consommation.
	CodeConsommation Code = "CODE_CONSOMMATION"

	// CodeCivil is the Code civil.
	CodeCivil Code = "CODE_CIVIL"

	// CodeProcedureCivile is the Code de procédure civile.
	CodeProcedureCivile Code = "CODE_PROCEDURE_CIVILE"
)

// codeInfo holds the provider-side metadata for a legal code.
type codeInfo struct {
	name    string
	textCID string
}

var knownCodes = map[Code]codeInfo{
	CodeConsommation:    {name: "Code de la consommation", textCID: "LEGITEXT000006069565"},
	CodeCivil:           {name: "Code civil", textCID: "LEGITEXT000006070721"},
	CodeProcedureCivile: {name: "Code de procédure civile", textCID: "LEGITEXT000006070716"},
}

// Codes returns every supported legal code in a stable order.
func Codes() []Code {
	return []Code{CodeConsommation, CodeCivil, CodeProcedureCivile}
}

// Valid reports whether the code is one of the supported legal codes.
func (legalCode Code) Valid() bool {
	_, known := knownCodes[legalCode]
	return known
}

// Name returns the human-readable code name used by the provider's NOM_CODE facet.
// Unknown codes return their raw value.
func (legalCode Code) Name() string {
	if info, known := knownCodes[legalCode]; known {
		return info.name
	}
	return string(legalCode)
}

// TextCID returns the provider's LEGITEXT identifier for the code, or "" if unknown.
func (legalCode Code) TextCID() string {
	return knownCodes[legalCode].textCID
}

// ParseCode accepts either the enum value ("CODE_CIVIL") or the display name
// ("Code civil"), case-insensitively.
func ParseCode(raw string) (Code, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("legal code is empty")
	}
	for _, candidate := range Codes() {
		if strings.EqualFold(trimmed, string(candidate)) || strings.EqualFold(trimmed, candidate.Name()) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unknown legal code %q", raw)
}

// GuessCode infers the legal code from a bare article number, following the
// numbering ranges of the tracked articles. Returns false when no guess is possible.
func GuessCode(rawNumber string) (Code, bool) {
	canonical := Normalize(rawNumber)
	for _, consumerPrefix := range []string{"L.217-", "L.612-", "L.811-"} {
		if strings.HasPrefix(canonical, consumerPrefix) {
			return CodeConsommation, true
		}
	}

	leadingDigits := canonical
	if cut := strings.IndexAny(leadingDigits, "-"); cut >= 0 {
		leadingDigits = leadingDigits[:cut]
	}
	base, err := strconv.Atoi(leadingDigits)
	if err != nil {
		return "", false
	}
	if base == 808 || (base >= 843 && base <= 847) {
		return CodeProcedureCivile, true
	}
	return CodeCivil, true
}

// Identifier names one article of one legal code. It is the immutable input
// to resolution; the number is kept as supplied and normalized on demand.
type Identifier struct {
	Code   Code   `json:"code" yaml:"code"`
	Number string `json:"number" yaml:"number"`
}

// Canonical returns the canonical form of the identifier's article number.
func (identifier Identifier) Canonical() string {
	return Normalize(identifier.Number)
}

// Same reports whether both identifiers denote the same article: identical codes
// and identical canonical numbers.
func (identifier Identifier) Same(other Identifier) bool {
	return identifier.Code == other.Code && identifier.Canonical() == other.Canonical()
}

// String returns "CODE L.217-3".
func (identifier Identifier) String() string {
	return string(identifier.Code) + " " + identifier.Canonical()
}

// Status is the effective state of an article version.
type Status string

const (
	// StatusInForce marks an article version currently in force.
	StatusInForce Status = "VIGUEUR"

	// StatusRepealed marks a repealed article version.
	StatusRepealed Status = "ABROGE"

	// StatusModified marks a superseded article version.
	StatusModified Status = "MODIFIE"

	// StatusUnknown is used when the provider state cannot be interpreted.
	StatusUnknown Status = "UNKNOWN"
)

// StatusFromEtat maps the provider's "etat" field onto a Status.
// The provider omits etat on current versions, so an empty value means in force.
func StatusFromEtat(etat string) Status {
	upper := strings.ToUpper(strings.TrimSpace(etat))
	switch {
	case upper == "":
		return StatusInForce
	case strings.Contains(upper, "VIGUEUR"):
		return StatusInForce
	case strings.Contains(upper, "ABROG"):
		return StatusRepealed
	case strings.Contains(upper, "MODIF"):
		return StatusModified
	default:
		return StatusUnknown
	}
}

// Source tells which resolution path produced an article.
type Source string

const (
	// SourceTOC marks articles found through the code's table of contents.
	SourceTOC Source = "TOC"

	// SourceIDNum marks articles found through the id+number lookup.
	SourceIDNum Source = "ID_NUM"

	// SourceSearch marks articles found through the structured search.
	SourceSearch Source = "SEARCH"

	// SourceFallback marks lower-confidence articles scraped from the public site.
	SourceFallback Source = "FALLBACK"
)

// Resolved is the result of a successful, validated article fetch.
type Resolved struct {
	Code         Code
	Number       string
	UpstreamID   string
	Text         string
	Status       Status
	LastModified string
	Source       Source
	URL          string
	Checksum     string
	WordCount    int
}

// InForce reports whether the resolved version is currently in force.
func (resolved *Resolved) InForce() bool {
	return resolved != nil && resolved.Status == StatusInForce
}

// PermalinkBaseURL is the public Légifrance permalink prefix for article ids.
const PermalinkBaseURL = "https://www.legifrance.gouv.fr/codes/article_lc/"

// Permalink returns the public URL of an upstream article id, or "" for an empty id.
func Permalink(upstreamID string) string {
	if upstreamID == "" {
		return ""
	}
	return PermalinkBaseURL + upstreamID
}

// Checksum returns a short deterministic content hash of the text.
func Checksum(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])[:16]
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
