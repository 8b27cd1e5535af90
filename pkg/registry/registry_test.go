package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolbeans/legisync/pkg/article"
)

var syncTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

const longText = "Le vendeur livre un bien conforme au contrat et répond des défauts de conformité."

type fakeResolver struct {
	texts map[string]string
	calls []string
}

func (resolver *fakeResolver) Resolve(ctx context.Context, identifier article.Identifier) (*article.Resolved, error) {
	resolver.calls = append(resolver.calls, identifier.Canonical())
	text, found := resolver.texts[identifier.Canonical()]
	if !found {
		return nil, errors.New("unresolved")
	}
	return &article.Resolved{
		Code:         identifier.Code,
		Number:       identifier.Canonical(),
		Text:         text,
		Status:       article.StatusInForce,
		LastModified: "2022-01-01",
		Source:       article.SourceTOC,
		URL:          article.Permalink("LEGIARTI000044142140"),
		Checksum:     article.Checksum(text),
		WordCount:    article.WordCount(text),
	}, nil
}

type fakeFallback struct {
	text  string
	calls int
}

func (fallback *fakeFallback) Fetch(ctx context.Context, identifier article.Identifier) (*article.Resolved, error) {
	fallback.calls++
	if fallback.text == "" {
		return nil, errors.New("no permalink")
	}
	return &article.Resolved{
		Code:   identifier.Code,
		Number: identifier.Canonical(),
		Text:   fallback.text,
		Status: article.StatusInForce,
		Source: article.SourceFallback,
		URL:    article.Permalink("LEGIARTI000000000009"),
	}, nil
}

func newTestReconciler(resolver Resolver, fallback Fallback) *Reconciler {
	return NewReconciler(ReconcilerConfig{
		Resolver: resolver,
		Fallback: fallback,
		Now:      func() time.Time { return syncTime },
	})
}

func validEntry(number, text string) Entry {
	definition := Definition{Code: article.CodeConsommation, Number: number, Priority: 5}
	return NewEntry(definition, &article.Resolved{
		Text:   text,
		Status: article.StatusInForce,
		Source: article.SourceTOC,
	}, syncTime.AddDate(0, -1, 0))
}

func TestNewEntry(t *testing.T) {
	definition := Definition{Code: article.CodeConsommation, Number: "L217-3", Priority: 10}
	resolved := &article.Resolved{
		Text:         longText,
		Status:       article.StatusInForce,
		LastModified: "2022-01-01",
		Source:       article.SourceIDNum,
		URL:          "https://www.legifrance.gouv.fr/codes/article_lc/LEGIARTI000044142140",
	}

	entry := NewEntry(definition, resolved, syncTime)

	assert.Equal(t, "L.217-3", entry.ID)
	assert.Equal(t, "Code de la consommation, art. L. 217-3", entry.Label)
	assert.Equal(t, SourceAPI, entry.Source)
	assert.True(t, entry.IsValid)
	assert.Equal(t, article.Checksum(longText), entry.ChecksumValue())
	assert.Equal(t, "2025-03-14", *entry.LastVerified)
	assert.Equal(t, "2022-01-01", *entry.LastModified)
	assert.Equal(t, 14, entry.WordCount)

	repealed := *resolved
	repealed.Status = article.StatusRepealed
	assert.False(t, NewEntry(definition, &repealed, syncTime).IsValid, "repealed articles are never valid")

	short := *resolved
	short.Text = "Vingt caractères ici"
	assert.False(t, NewEntry(definition, &short, syncTime).IsValid, "text must exceed twenty characters")

	scraped := *resolved
	scraped.Source = article.SourceFallback
	scraped.LastModified = ""
	scrapedEntry := NewEntry(definition, &scraped, syncTime)
	assert.Equal(t, SourceFallback, scrapedEntry.Source)
	assert.Nil(t, scrapedEntry.LastModified)
}

func TestDefaultLabel(t *testing.T) {
	assert.Equal(t, "Code civil, art. 1641", DefaultLabel(article.CodeCivil, "1641"))
	assert.Equal(t, "Code de procédure civile, art. 808", DefaultLabel(article.CodeProcedureCivile, "808"))
	assert.Equal(t, "Code de la consommation, art. L. 612-1", DefaultLabel(article.CodeConsommation, "l612-1"))
}

func TestComputeMetadata_Coverage(t *testing.T) {
	articles := make(map[string]Entry)
	for _, number := range []string{"L.217-3", "L.217-4", "L.217-5", "L.217-6", "L.217-7", "L.217-8", "L.217-9"} {
		articles[number] = validEntry(number, longText)
	}
	for _, number := range []string{"L.217-10", "L.217-11", "L.217-12"} {
		articles[number] = Entry{Code: article.CodeConsommation, ID: number, Status: article.StatusUnknown}
	}

	metadata := ComputeMetadata(articles, syncTime)

	assert.Equal(t, 10, metadata.TotalArticles)
	assert.Equal(t, 7, metadata.ValidArticles)
	assert.InDelta(t, 70.0, metadata.Coverage, 1e-9)
	assert.Equal(t, "2025-03-14T09:30:00", metadata.LastUpdated)
	assert.Equal(t, SchemaVersion, metadata.Version)
	assert.Len(t, metadata.Checksum, 12)

	empty := ComputeMetadata(map[string]Entry{}, syncTime)
	assert.Zero(t, empty.Coverage)
	assert.Zero(t, empty.TotalArticles)
}

func TestArticlesChecksum_Deterministic(t *testing.T) {
	first := map[string]Entry{"L.217-3": validEntry("L.217-3", longText), "1641": validEntry("1641", longText)}
	second := map[string]Entry{"1641": validEntry("1641", longText), "L.217-3": validEntry("L.217-3", longText)}
	assert.Equal(t, ArticlesChecksum(first), ArticlesChecksum(second))

	second["1641"] = validEntry("1641", longText+" Modifié.")
	assert.NotEqual(t, ArticlesChecksum(first), ArticlesChecksum(second))
}

func TestLoad_MissingFile(t *testing.T) {
	legalRegistry, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, legalRegistry.Articles)
	assert.NotNil(t, legalRegistry.Articles)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

const existingRegistry = `{
  "articles": {
    "1641": {
      "checksum": "1a2b3c4d5e6f7a8b",
      "code": "CODE_CIVIL",
      "id": "1641",
      "isValid": true,
      "label": "Code civil, art. 1641",
      "lastModified": null,
      "lastVerified": "2024-11-02",
      "priority": 8,
      "source": "LEGIFRANCE",
      "status": "VIGUEUR",
      "text": "Le vendeur est tenu de la garantie à raison des défauts cachés de la chose vendue <qui> la rendent impropre & l'usage.",
      "url": "https://www.legifrance.gouv.fr/codes/article_lc/LEGIARTI000006441924",
      "wordCount": 21
    },
    "L.217-4": {
      "checksum": null,
      "code": "CODE_CONSOMMATION",
      "id": "L.217-4",
      "isValid": false,
      "label": "Code de la consommation, art. L. 217-4",
      "lastModified": null,
      "lastVerified": null,
      "priority": 9,
      "source": "LEGIFRANCE",
      "status": "UNKNOWN",
      "text": null,
      "url": null,
      "wordCount": 0
    }
  },
  "metadata": {
    "checksum": "abc",
    "coverage": 50.0,
    "lastUpdated": "2024-11-02T10:00:00",
    "totalArticles": 2,
    "validArticles": 1,
    "version": "2.3.0"
  }
}`

func articlesSection(t *testing.T, data []byte) string {
	t.Helper()
	var document map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &document))
	return string(document["articles"])
}

func TestSaveLoad_RoundTripPreservesArticles(t *testing.T) {
	directory := t.TempDir()
	source := filepath.Join(directory, "original.json")
	require.NoError(t, os.WriteFile(source, []byte(existingRegistry), 0o644))

	legalRegistry, err := Load(source)
	require.NoError(t, err)
	require.Len(t, legalRegistry.Articles, 2)
	assert.Nil(t, legalRegistry.Articles["L.217-4"].Text)

	target := filepath.Join(directory, "nested", "registry.generated.json")
	require.NoError(t, Save(target, legalRegistry))

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, articlesSection(t, []byte(existingRegistry)), articlesSection(t, written))
	assert.Contains(t, string(written), "<qui> la rendent impropre & l'usage", "HTML characters are written as is")

	entries, err := os.ReadDir(filepath.Join(directory, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary file is left behind")
}

func TestSync_RefreshesAndDetectsChanges(t *testing.T) {
	previous := New()
	previous.Articles["L.217-3"] = validEntry("L.217-3", longText)
	previous.Articles["L.217-4"] = validEntry("L.217-4", "Ancienne rédaction de l'article sur la conformité.")
	previous.Articles["L.111-1"] = validEntry("L.111-1", longText)

	resolver := &fakeResolver{texts: map[string]string{
		"L.217-3": longText,
		"L.217-4": "Nouvelle rédaction de l'article sur la conformité du bien.",
	}}
	definitions := []Definition{
		{Code: article.CodeConsommation, Number: "L.217-3", Priority: 10},
		{Code: article.CodeConsommation, Number: "L.217-4", Priority: 9},
	}

	updated, report, err := newTestReconciler(resolver, nil).Sync(context.Background(), definitions, previous)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Refreshed)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, []string{"L.111-1"}, report.Dropped)
	require.Len(t, report.ChangedItems(), 1)
	assert.Equal(t, "L.217-4", report.ChangedItems()[0].Number)
	assert.Equal(t, article.SourceTOC, report.Items[0].Source)

	assert.Len(t, updated.Articles, 2)
	assert.Equal(t, "2025-03-14", *updated.Articles["L.217-3"].LastVerified)
	assert.Equal(t, 2, updated.Metadata.ValidArticles)
	assert.Len(t, previous.Articles, 3, "the previous registry is not modified")
}

func TestSync_RetainsPreviousValidEntry(t *testing.T) {
	previousEntry := validEntry("1641", longText)
	previousEntry.Code = article.CodeCivil
	previous := New()
	previous.Articles["1641"] = previousEntry

	fallback := &fakeFallback{text: longText}
	updated, report, err := newTestReconciler(&fakeResolver{}, fallback).Sync(context.Background(),
		[]Definition{{Code: article.CodeCivil, Number: "1641", Priority: 8}}, previous)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Retained)
	assert.Equal(t, OutcomeRetained, report.Items[0].Outcome)
	assert.Equal(t, "unresolved", report.Items[0].Error)
	assert.Zero(t, fallback.calls, "a valid previous entry is preferred over scraping")
	if diff := cmp.Diff(previousEntry, updated.Articles["1641"]); diff != "" {
		t.Errorf("retained entry mismatch (-want +got):\n%s", diff)
	}
}

func TestSync_FallbackWhenNoValidPrevious(t *testing.T) {
	previous := New()
	previous.Articles["L.217-5"] = Entry{Code: article.CodeConsommation, ID: "L.217-5", Status: article.StatusUnknown}

	fallback := &fakeFallback{text: "Texte récupéré depuis le site public de Légifrance."}
	updated, report, err := newTestReconciler(&fakeResolver{}, fallback).Sync(context.Background(),
		[]Definition{{Code: article.CodeConsommation, Number: "L.217-5", Priority: 8}}, previous)
	require.NoError(t, err)

	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 1, report.Fallback)
	assert.Equal(t, 1, report.Resolved())
	entry := updated.Articles["L.217-5"]
	assert.Equal(t, SourceFallback, entry.Source)
	assert.True(t, entry.IsValid)
	assert.Equal(t, "https://www.legifrance.gouv.fr/codes/article_lc/LEGIARTI000000000009", *entry.URL)
}

func TestSync_FailureKeepsPreviousOrOmits(t *testing.T) {
	invalidPrevious := Entry{Code: article.CodeConsommation, ID: "L.217-5", Status: article.StatusUnknown, Priority: 8}
	previous := New()
	previous.Articles["L.217-5"] = invalidPrevious

	definitions := []Definition{
		{Code: article.CodeConsommation, Number: "L.217-5", Priority: 8},
		{Code: article.CodeConsommation, Number: "L.217-6", Priority: 7},
	}
	updated, report, err := newTestReconciler(&fakeResolver{}, &fakeFallback{}).Sync(context.Background(), definitions, previous)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Failed)
	assert.Zero(t, report.Resolved())
	assert.Contains(t, report.Items[0].Error, "fallback: no permalink")
	assert.Equal(t, invalidPrevious, updated.Articles["L.217-5"])
	_, present := updated.Articles["L.217-6"]
	assert.False(t, present, "an article never resolved is absent")
}

func TestSync_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newTestReconciler(&fakeResolver{}, nil).Sync(ctx, DefaultDefinitions(), New())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyncOne_MergesIntoPrevious(t *testing.T) {
	previous := New()
	previous.Articles["1641"] = validEntry("1641", longText)
	previous.Articles["L.217-3"] = validEntry("L.217-3", longText)

	resolver := &fakeResolver{texts: map[string]string{"L.217-3": longText + " Version consolidée."}}
	updated, report, err := newTestReconciler(resolver, nil).SyncOne(context.Background(),
		Definition{Code: article.CodeConsommation, Number: "L217-3", Priority: 10}, previous)
	require.NoError(t, err)

	assert.Equal(t, []string{"L.217-3"}, resolver.calls)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, "article", report.Mode)
	assert.Equal(t, previous.Articles["1641"], updated.Articles["1641"])
	assert.Equal(t, 2, updated.Metadata.TotalArticles)
	previousEntry := previous.Articles["L.217-3"]
	assert.Equal(t, longText, previousEntry.TextValue())
}

func TestReport_Format(t *testing.T) {
	report := NewReport("sync", syncTime)
	report.RecordItem(&ReportItem{Code: article.CodeCivil, Number: "1641", Outcome: OutcomeChanged,
		Source: article.SourceTOC, Checksum: "bbbb", PreviousChecksum: "aaaa", WordCount: 21})
	report.RecordItem(&ReportItem{Code: article.CodeCivil, Number: "1642", Outcome: OutcomeFailed, Error: "unresolved"})
	report.FinishedAt = syncTime.Add(1500 * time.Millisecond)

	table := report.Format("table")
	assert.Contains(t, table, "=== Sync Report (sync) ===")
	assert.Contains(t, table, "Changed:   1")
	assert.Contains(t, table, "Failed:    1")
	assert.Contains(t, table, "aaaa -> bbbb")
	assert.Contains(t, table, "Duration:  1.5s")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(report.Format("JSON")), &decoded))
	assert.EqualValues(t, 1, decoded["changed"])
	assert.Len(t, decoded["items"], 2)
}

func TestDefaultDefinitions(t *testing.T) {
	definitions := DefaultDefinitions()
	require.NoError(t, ValidateDefinitions(definitions))
	assert.Len(t, definitions, 49)

	first, err := FindDefinition(definitions, "L217-3")
	require.NoError(t, err)
	assert.Equal(t, 10, first.Priority)
	assert.Equal(t, "Code de la consommation, art. L. 217-3", first.Label)

	procedure, err := FindDefinition(definitions, "art. 808")
	require.NoError(t, err)
	assert.Equal(t, article.CodeProcedureCivile, procedure.Code)

	_, err = FindDefinition(definitions, "L.999-1")
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestLoadDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracked.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(`
articles:
  - code: CODE_CONSOMMATION
    number: L.217-3
    priority: 10
  - code: CODE_CIVIL
    number: "1641"
    label: Garantie des vices cachés
`)), 0o644))

	definitions, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, definitions, 2)
	assert.Equal(t, "Code de la consommation, art. L. 217-3", definitions[0].DisplayLabel())
	assert.Equal(t, "Garantie des vices cachés", definitions[1].DisplayLabel())
}

func TestLoadDefinitions_InfersMissingCodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracked.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(`
articles:
  - number: L217-5
  - number: "808"
  - number: "1642-1"
  - code: CODE_CIVIL
    number: "1641"
`)), 0o644))

	definitions, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, definitions, 4)
	assert.Equal(t, article.CodeConsommation, definitions[0].Code)
	assert.Equal(t, article.CodeProcedureCivile, definitions[1].Code)
	assert.Equal(t, article.CodeCivil, definitions[2].Code)
	assert.Equal(t, article.CodeCivil, definitions[3].Code)
}

func TestLoadDefinitions_UnplaceableNumberNeedsCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracked.yaml")
	require.NoError(t, os.WriteFile(path, []byte("articles:\n  - number: R.631-3\n"), 0o644))

	_, err := LoadDefinitions(path)
	assert.ErrorContains(t, err, "article R.631-3: code is required")
}

func TestValidateDefinitions_Errors(t *testing.T) {
	tests := []struct {
		name        string
		definitions []Definition
		message     string
	}{
		{"empty", nil, "no tracked articles"},
		{"missing number", []Definition{{Code: article.CodeCivil}}, "article 0: number is required"},
		{"missing code", []Definition{{Number: "1641"}}, "article 1641: code is required"},
		{"unknown code", []Definition{{Code: "CODE_PENAL", Number: "1641"}}, "unknown code"},
		{"duplicate", []Definition{
			{Code: article.CodeConsommation, Number: "L.217-3"},
			{Code: article.CodeConsommation, Number: "L217-3"},
		}, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinitions(tt.definitions)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestFormatStatus(t *testing.T) {
	legalRegistry := New()
	legalRegistry.Articles["1641"] = validEntry("1641", longText)
	high := validEntry("L.217-3", longText)
	high.Priority = 10
	legalRegistry.Articles["L.217-3"] = high
	legalRegistry.Articles["L.217-4"] = Entry{Code: article.CodeConsommation, ID: "L.217-4", Priority: 9, Status: article.StatusUnknown}
	legalRegistry.Metadata = ComputeMetadata(legalRegistry.Articles, syncTime)

	rows := legalRegistry.StatusRows()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"L.217-3", "L.217-4", "1641"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.False(t, rows[1].Valid)

	table := legalRegistry.FormatStatus("table")
	assert.Contains(t, table, "Coverage:     66.7%")
	assert.Contains(t, table, "Last updated: 2025-03-14T09:30:00")

	var decoded struct {
		Metadata Metadata    `json:"metadata"`
		Articles []StatusRow `json:"articles"`
	}
	require.NoError(t, json.Unmarshal([]byte(legalRegistry.FormatStatus("json")), &decoded))
	assert.Equal(t, 2, decoded.Metadata.ValidArticles)
	assert.Len(t, decoded.Articles, 3)

	assert.Contains(t, New().FormatStatus("table"), "Registry is empty.")
}
