// Package history keeps an audit ledger of sync runs and of the article texts
// that changed during each run, in a local SQLite database.
package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/coolbeans/legisync/pkg/article"
	"github.com/coolbeans/legisync/pkg/registry"
)

// Run is one recorded sync run.
type Run struct {
	ID               string    `json:"id"`
	Mode             string    `json:"mode"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Refreshed        int       `json:"refreshed"`
	Changed          int       `json:"changed"`
	Retained         int       `json:"retained"`
	Fallback         int       `json:"fallback"`
	Failed           int       `json:"failed"`
	Coverage         float64   `json:"coverage"`
	RegistryChecksum string    `json:"registry_checksum"`
}

// Change is an article whose text differs from the previous registry.
type Change struct {
	RunID       string       `json:"run_id"`
	Code        article.Code `json:"code"`
	Number      string       `json:"number"`
	OldChecksum string       `json:"old_checksum"`
	NewChecksum string       `json:"new_checksum"`
	Diff        string       `json:"diff"`
}

// NewRun creates a run record with a fresh identifier from a sync report.
func NewRun(report *registry.Report) Run {
	return Run{
		ID:               uuid.NewString(),
		Mode:             report.Mode,
		StartedAt:        report.StartedAt,
		FinishedAt:       report.FinishedAt,
		Refreshed:        report.Refreshed,
		Changed:          report.Changed,
		Retained:         report.Retained,
		Fallback:         report.Fallback,
		Failed:           report.Failed,
		Coverage:         report.Metadata.Coverage,
		RegistryChecksum: report.Metadata.Checksum,
	}
}

// ChangesFrom lists the text changes of a run with a unified diff of each
// article text.
func ChangesFrom(runID string, previous, updated *registry.Registry, report *registry.Report) ([]Change, error) {
	var changes []Change
	for _, item := range report.ChangedItems() {
		oldEntry, _ := previous.Lookup(item.Number)
		newEntry, _ := updated.Lookup(item.Number)

		diff, err := TextDiff(item.Number, oldEntry.TextValue(), newEntry.TextValue(), item.PreviousChecksum, item.Checksum)
		if err != nil {
			return nil, fmt.Errorf("failed to diff %s: %w", item.Number, err)
		}
		changes = append(changes, Change{
			RunID:       runID,
			Code:        item.Code,
			Number:      item.Number,
			OldChecksum: item.PreviousChecksum,
			NewChecksum: item.Checksum,
			Diff:        diff,
		})
	}
	return changes, nil
}

// TextDiff returns a unified diff between two versions of an article text.
func TextDiff(number, oldText, newText, oldChecksum, newChecksum string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: number + "@" + oldChecksum,
		ToFile:   number + "@" + newChecksum,
		Context:  3,
	})
}
