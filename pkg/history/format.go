package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FormatRuns renders runs as a table or as JSON.
func FormatRuns(runs []Run, outputFormat string) string {
	if strings.ToLower(outputFormat) == "json" {
		return formatJSON(runs)
	}

	if len(runs) == 0 {
		return "No sync runs recorded.\n"
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%-10s %-8s %-20s %-9s %-8s %-9s %-9s %-7s %s\n",
		"Run", "Mode", "Started", "Refreshed", "Changed", "Retained", "Fallback", "Failed", "Coverage"))
	builder.WriteString(fmt.Sprintf("%-10s %-8s %-20s %-9s %-8s %-9s %-9s %-7s %s\n",
		"---", "----", "-------", "---------", "-------", "--------", "--------", "------", "--------"))
	for _, run := range runs {
		builder.WriteString(fmt.Sprintf("%-10s %-8s %-20s %-9d %-8d %-9d %-9d %-7d %.1f%%\n",
			shortID(run.ID), run.Mode, run.StartedAt.Local().Format(time.DateTime),
			run.Refreshed, run.Changed, run.Retained, run.Fallback, run.Failed, run.Coverage))
	}
	return builder.String()
}

// FormatChanges renders the changes of one run, diffs included.
func FormatChanges(run Run, changes []Change, outputFormat string) string {
	if strings.ToLower(outputFormat) == "json" {
		return formatJSON(struct {
			Run     Run      `json:"run"`
			Changes []Change `json:"changes"`
		}{run, changes})
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Run %s (%s) started %s\n", run.ID, run.Mode, run.StartedAt.Local().Format(time.DateTime)))
	if len(changes) == 0 {
		builder.WriteString("No article text changed.\n")
		return builder.String()
	}
	for _, change := range changes {
		builder.WriteString(fmt.Sprintf("\n%s %s: %s -> %s\n", change.Code, change.Number, change.OldChecksum, change.NewChecksum))
		builder.WriteString(change.Diff)
	}
	return builder.String()
}

func formatJSON(value any) string {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}\n", err.Error())
	}
	return string(data) + "\n"
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
