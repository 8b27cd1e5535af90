package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coolbeans/legisync/pkg/history"
	"github.com/coolbeans/legisync/pkg/registry"
)

func statusCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registry metadata and per-article state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			legalRegistry, err := registry.Load(app.config.RegistryPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, legalRegistry.FormatStatus(app.format))
			return nil
		},
	}
}

func historyCmd(app *cli) *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sync runs, or the text changes of one run",
		Long: `List the sync runs recorded in the history database, most recent
first. With --run, show the article changes of that run as unified diffs.

Example:
  legisync history --history-db .legisync/history.db --limit 5
  legisync history --history-db .legisync/history.db --run 0f8fad5b`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.config.HistoryDB == "" {
				return fmt.Errorf("no history database configured (use --history-db or %s)", "LEGISYNC_HISTORY_DB")
			}
			ledger, err := history.Open(app.config.HistoryDB)
			if err != nil {
				return err
			}
			defer ledger.Close()

			if runID == "" {
				runs, err := ledger.RecentRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if app.format != "json" {
					fmt.Fprintf(app.stdout, "History database: %s\n\n", ledger.Path())
				}
				fmt.Fprint(app.stdout, history.FormatRuns(runs, app.format))
				return nil
			}

			run, err := ledger.FindRun(cmd.Context(), runID)
			if err != nil {
				return err
			}
			changes, err := ledger.ChangesForRun(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, history.FormatChanges(run, changes, app.format))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "run identifier or prefix")
	return cmd
}
