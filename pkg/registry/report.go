package registry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coolbeans/legisync/pkg/article"
)

// Outcome is what a sync did with one tracked article.
type Outcome string

const (
	// OutcomeRefreshed means the article resolved and its text is unchanged.
	OutcomeRefreshed Outcome = "refreshed"

	// OutcomeChanged means the article resolved and its checksum differs from
	// the previous entry.
	OutcomeChanged Outcome = "changed"

	// OutcomeRetained means resolution failed and the previous valid entry was
	// kept as it was.
	OutcomeRetained Outcome = "retained"

	// OutcomeFallback means the text was scraped from the public website.
	OutcomeFallback Outcome = "fallback"

	// OutcomeFailed means no text could be obtained.
	OutcomeFailed Outcome = "failed"
)

// ReportItem is the result of syncing one article.
type ReportItem struct {
	Code             article.Code   `json:"code"`
	Number           string         `json:"number"`
	Outcome          Outcome        `json:"outcome"`
	Source           article.Source `json:"source,omitempty"`
	Checksum         string         `json:"checksum,omitempty"`
	PreviousChecksum string         `json:"previous_checksum,omitempty"`
	WordCount        int            `json:"word_count,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// TextChanged reports whether the entry text differs from the previous one.
func (item *ReportItem) TextChanged() bool {
	return item.PreviousChecksum != "" && item.Checksum != "" && item.PreviousChecksum != item.Checksum
}

// Report summarizes a sync run.
type Report struct {
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Refreshed int `json:"refreshed"`
	Changed   int `json:"changed"`
	Retained  int `json:"retained"`
	Fallback  int `json:"fallback"`
	Failed    int `json:"failed"`

	// Dropped lists previous entries that are no longer tracked.
	Dropped []string `json:"dropped,omitempty"`

	// Metadata is the metadata of the resulting registry.
	Metadata Metadata `json:"metadata"`

	Items []*ReportItem `json:"items"`
}

// NewReport creates an empty report.
func NewReport(mode string, startedAt time.Time) *Report {
	return &Report{Mode: mode, StartedAt: startedAt, Items: make([]*ReportItem, 0)}
}

// RecordItem adds an article result to the report.
func (report *Report) RecordItem(item *ReportItem) {
	report.Items = append(report.Items, item)
	switch item.Outcome {
	case OutcomeRefreshed:
		report.Refreshed++
	case OutcomeChanged:
		report.Changed++
	case OutcomeRetained:
		report.Retained++
	case OutcomeFallback:
		report.Fallback++
	case OutcomeFailed:
		report.Failed++
	}
}

// Resolved is the number of articles whose text was obtained during the run.
func (report *Report) Resolved() int {
	return report.Refreshed + report.Changed + report.Fallback
}

// ChangedItems returns the items whose text differs from the previous entry.
func (report *Report) ChangedItems() []*ReportItem {
	var changed []*ReportItem
	for _, item := range report.Items {
		if item.TextChanged() {
			changed = append(changed, item)
		}
	}
	return changed
}

// Format returns the report in the specified format (table or json).
func (report *Report) Format(outputFormat string) string {
	switch strings.ToLower(outputFormat) {
	case "json":
		return report.formatJSON()
	default:
		return report.formatTable()
	}
}

func (report *Report) formatTable() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("=== Sync Report (%s) ===\n\n", report.Mode))

	builder.WriteString("Summary:\n")
	builder.WriteString(fmt.Sprintf("  Articles:  %d\n", len(report.Items)))
	builder.WriteString(fmt.Sprintf("  Refreshed: %d\n", report.Refreshed))
	builder.WriteString(fmt.Sprintf("  Changed:   %d\n", report.Changed))
	builder.WriteString(fmt.Sprintf("  Retained:  %d\n", report.Retained))
	builder.WriteString(fmt.Sprintf("  Fallback:  %d\n", report.Fallback))
	builder.WriteString(fmt.Sprintf("  Failed:    %d\n", report.Failed))
	builder.WriteString(fmt.Sprintf("  Coverage:  %.1f%% (%d/%d valid)\n",
		report.Metadata.Coverage, report.Metadata.ValidArticles, report.Metadata.TotalArticles))
	if !report.FinishedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("  Duration:  %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)))
	}
	builder.WriteString("\n")

	if len(report.Items) > 0 {
		builder.WriteString("Articles:\n")
		builder.WriteString(fmt.Sprintf("  %-24s %-10s %-8s %-8s %s\n", "Article", "Outcome", "Source", "Words", "Detail"))
		builder.WriteString(fmt.Sprintf("  %-24s %-10s %-8s %-8s %s\n", "-------", "-------", "------", "-----", "------"))

		for _, item := range report.Items {
			detail := item.Error
			if item.TextChanged() {
				detail = item.PreviousChecksum + " -> " + item.Checksum
			}
			builder.WriteString(fmt.Sprintf("  %-24s %-10s %-8s %-8d %s\n",
				truncateReportString(string(item.Code)+" "+item.Number, 24),
				item.Outcome,
				item.Source,
				item.WordCount,
				truncateReportString(detail, 70)))
		}
	}

	if len(report.Dropped) > 0 {
		builder.WriteString("\nNo longer tracked:\n")
		for _, number := range report.Dropped {
			builder.WriteString("  " + number + "\n")
		}
	}

	return builder.String()
}

func (report *Report) formatJSON() string {
	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(reportJSON)
}

func truncateReportString(inputStr string, maxLen int) string {
	runes := []rune(inputStr)
	if len(runes) <= maxLen {
		return inputStr
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
