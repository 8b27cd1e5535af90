package registry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StatusRow is the text-free view of an entry used by the status listing.
type StatusRow struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Priority     int    `json:"priority"`
	Status       string `json:"status"`
	Source       string `json:"source"`
	Valid        bool   `json:"valid"`
	WordCount    int    `json:"word_count"`
	LastVerified string `json:"last_verified,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Checksum     string `json:"checksum,omitempty"`
}

// StatusRows lists the entries by descending priority.
func (legalRegistry *Registry) StatusRows() []StatusRow {
	rows := make([]StatusRow, 0, len(legalRegistry.Articles))
	for _, number := range legalRegistry.Numbers() {
		entry := legalRegistry.Articles[number]
		rows = append(rows, StatusRow{
			ID:           number,
			Code:         string(entry.Code),
			Priority:     entry.Priority,
			Status:       string(entry.Status),
			Source:       entry.Source,
			Valid:        entry.Valid(),
			WordCount:    entry.WordCount,
			LastVerified: deref(entry.LastVerified),
			LastModified: deref(entry.LastModified),
			Checksum:     entry.ChecksumValue(),
		})
	}
	return rows
}

// FormatStatus renders the metadata and the per-article listing.
func (legalRegistry *Registry) FormatStatus(outputFormat string) string {
	if strings.ToLower(outputFormat) == "json" {
		statusJSON, err := json.MarshalIndent(struct {
			Metadata Metadata    `json:"metadata"`
			Articles []StatusRow `json:"articles"`
		}{legalRegistry.Metadata, legalRegistry.StatusRows()}, "", "  ")
		if err != nil {
			return fmt.Sprintf(`{"error": %q}`, err.Error())
		}
		return string(statusJSON)
	}

	var builder strings.Builder
	metadata := legalRegistry.Metadata
	builder.WriteString("=== Registry Status ===\n\n")
	builder.WriteString(fmt.Sprintf("  Version:      %s\n", metadata.Version))
	builder.WriteString(fmt.Sprintf("  Last updated: %s\n", metadata.LastUpdated))
	builder.WriteString(fmt.Sprintf("  Articles:     %d\n", metadata.TotalArticles))
	builder.WriteString(fmt.Sprintf("  Valid:        %d\n", metadata.ValidArticles))
	builder.WriteString(fmt.Sprintf("  Coverage:     %.1f%%\n", metadata.Coverage))
	builder.WriteString(fmt.Sprintf("  Checksum:     %s\n", metadata.Checksum))
	builder.WriteString("\n")

	rows := legalRegistry.StatusRows()
	if len(rows) == 0 {
		builder.WriteString("Registry is empty.\n")
		return builder.String()
	}

	builder.WriteString(fmt.Sprintf("  %-10s %-22s %-4s %-8s %-10s %-6s %-6s %s\n",
		"Article", "Code", "Prio", "Status", "Source", "Valid", "Words", "Verified"))
	builder.WriteString(fmt.Sprintf("  %-10s %-22s %-4s %-8s %-10s %-6s %-6s %s\n",
		"-------", "----", "----", "------", "------", "-----", "-----", "--------"))
	for _, row := range rows {
		valid := "no"
		if row.Valid {
			valid = "yes"
		}
		builder.WriteString(fmt.Sprintf("  %-10s %-22s %-4d %-8s %-10s %-6s %-6d %s\n",
			row.ID, row.Code, row.Priority, row.Status, row.Source, valid, row.WordCount, row.LastVerified))
	}
	return builder.String()
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
