package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coolbeans/legisync/pkg/article"
	"github.com/coolbeans/legisync/pkg/history"
	"github.com/coolbeans/legisync/pkg/legifrance"
	"github.com/coolbeans/legisync/pkg/registry"
	"github.com/coolbeans/legisync/pkg/resolve"
	"github.com/coolbeans/legisync/pkg/scrape"
	"github.com/coolbeans/legisync/pkg/toc"
)

func syncCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Resolve every tracked article and rewrite the registry",
		Long: `Resolve every tracked article through the table of contents, the
id+number lookup and the structured search, then rewrite the registry.

Articles that cannot be resolved keep their previous valid entry. When there is
none, the public website is scraped unless --no-fallback is set.

Example:
  legisync sync
  legisync sync --env sandbox --registry registry.json --history-db .legisync/history.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			definitions, err := app.definitions()
			if err != nil {
				return err
			}
			previous, err := registry.Load(app.config.RegistryPath)
			if err != nil {
				return err
			}

			runSyncer, err := app.newSyncer(cmd.Context())
			if err != nil {
				return err
			}

			updated, report, err := runSyncer.reconciler.Sync(cmd.Context(), definitions, previous)
			if err != nil {
				return err
			}
			return app.finish(cmd.Context(), runSyncer, previous, updated, report)
		},
	}
}

func articleCmd(app *cli) *cobra.Command {
	var codeName string
	var showText bool

	cmd := &cobra.Command{
		Use:   "article <number>",
		Short: "Resolve one article and merge it into the registry",
		Long: `Resolve a single article and merge it into the existing registry.
Every other entry is left untouched.

An article missing from the tracked set is resolved in the code given with
--code, or in the code its number belongs to (L.217-*, L.612-* and L.811-* in
the consumer code, 808 and 843 to 847 in civil procedure, other plain numbers
in the civil code). It leaves the registry on the next full sync.

Example:
  legisync article L217-3
  legisync article 1641 --code CODE_CIVIL --text`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			definitions, err := app.definitions()
			if err != nil {
				return err
			}
			var code article.Code
			if codeName != "" {
				if code, err = article.ParseCode(codeName); err != nil {
					return err
				}
			}
			definition, err := app.articleDefinition(definitions, args[0], code)
			if err != nil {
				return err
			}

			previous, err := registry.Load(app.config.RegistryPath)
			if err != nil {
				return err
			}
			runSyncer, err := app.newSyncer(cmd.Context())
			if err != nil {
				return err
			}

			updated, report, err := runSyncer.reconciler.SyncOne(cmd.Context(), definition, previous)
			if err != nil {
				return err
			}
			if err := app.finish(cmd.Context(), runSyncer, previous, updated, report); err != nil {
				return err
			}

			if showText {
				entry, _ := updated.Lookup(definition.Number)
				fmt.Fprintf(app.stdout, "\n%s\n\n%s\n", entry.Label, entry.TextValue())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&codeName, "code", "", "legal code of the article (CODE_CONSOMMATION, CODE_CIVIL, CODE_PROCEDURE_CIVILE)")
	cmd.Flags().BoolVar(&showText, "text", false, "print the article text")
	return cmd
}

// articleDefinition finds the definition of number. A tracked number must
// match code when one is given. An untracked number gets a one-off definition
// in code, or in the code guessed from the number.
func (app *cli) articleDefinition(definitions []registry.Definition, number string, code article.Code) (registry.Definition, error) {
	definition, err := registry.FindDefinition(definitions, number)
	if err == nil {
		if code != "" && code != definition.Code {
			return registry.Definition{}, fmt.Errorf("%s in %s: %w", definition.Canonical(), code, registry.ErrNotTracked)
		}
		return definition, nil
	}

	if code == "" {
		guessed, found := article.GuessCode(number)
		if !found {
			return registry.Definition{}, err
		}
		code = guessed
	}
	definition = registry.Definition{Code: code, Number: article.Normalize(number)}
	fmt.Fprintf(app.stdout, "%s is not tracked; resolving it in %s\n", definition.Canonical(), code.Name())
	return definition, nil
}

// syncer is the per-run object graph: one client, one TOC cache.
type syncer struct {
	pipeline   *resolve.Pipeline
	reconciler *registry.Reconciler
}

func (app *cli) definitions() ([]registry.Definition, error) {
	if app.config.TrackedPath == "" {
		return registry.DefaultDefinitions(), nil
	}
	return registry.LoadDefinitions(app.config.TrackedPath)
}

// newSyncer authenticates and wires the resolution pipeline.
func (app *cli) newSyncer(ctx context.Context) (*syncer, error) {
	if !app.config.HasCredentials() {
		return nil, fmt.Errorf("%w: set %s and %s", legifrance.ErrAuth, "LEGIFRANCE_CLIENT_ID", "LEGIFRANCE_CLIENT_SECRET")
	}

	clientConfig, err := app.config.ClientConfig(app.logger)
	if err != nil {
		return nil, err
	}
	client := legifrance.NewClient(clientConfig)
	switch err := client.Authenticate(ctx); {
	case errors.Is(err, legifrance.ErrTransport):
		// Calls authenticate lazily and retry the token endpoint with backoff.
		app.logger.Warn("token endpoint unavailable at startup", zap.Error(err))
	case err != nil:
		return nil, fmt.Errorf("authentication failed: %w", err)
	default:
		app.logger.Info("authenticated", zap.String("environment", string(clientConfig.Environment)),
			zap.Time("expires_at", client.ExpiresAt()))
	}

	indexer := toc.NewIndexer(client, app.logger)
	pipeline := resolve.NewDefaultPipeline(client, indexer, app.logger)

	var fallback registry.Fallback
	if !app.config.Scraper.Disabled {
		scraper, err := scrape.New(app.config.ScraperConfig(app.logger))
		if err != nil {
			return nil, err
		}
		fallback = scraper
	}

	return &syncer{
		pipeline: pipeline,
		reconciler: registry.NewReconciler(registry.ReconcilerConfig{
			Resolver: pipeline,
			Fallback: fallback,
			Logger:   app.logger,
		}),
	}, nil
}

// finish writes the registry, records history and prints the report.
func (app *cli) finish(ctx context.Context, runSyncer *syncer, previous, updated *registry.Registry, report *registry.Report) error {
	if report.Resolved() == 0 {
		fmt.Fprintln(app.stdout, report.Format(app.format))
		return errNothingResolved
	}

	if err := registry.Save(app.config.RegistryPath, updated); err != nil {
		return err
	}
	app.recordHistory(ctx, previous, updated, report)

	fmt.Fprintln(app.stdout, report.Format(app.format))
	if strings.ToLower(app.format) != "json" {
		fmt.Fprintln(app.stdout, formatStrategyStats(runSyncer.pipeline.Stats()))
		fmt.Fprintf(app.stdout, "Registry written to %s\n", app.config.RegistryPath)
	}
	return nil
}

// recordHistory stores the run in the ledger. Ledger failures never fail a run.
func (app *cli) recordHistory(ctx context.Context, previous, updated *registry.Registry, report *registry.Report) {
	if app.config.HistoryDB == "" {
		return
	}

	ledger, err := history.Open(app.config.HistoryDB)
	if err != nil {
		app.logger.Warn("history unavailable", zap.Error(err))
		return
	}
	defer ledger.Close()

	run := history.NewRun(report)
	changes, err := history.ChangesFrom(run.ID, previous, updated, report)
	if err != nil {
		app.logger.Warn("failed to diff changed articles", zap.Error(err))
	}
	if err := ledger.RecordRun(ctx, run, changes); err != nil {
		app.logger.Warn("failed to record sync run", zap.Error(err))
		return
	}
	app.logger.Info("sync run recorded", zap.String("run", run.ID), zap.Int("changes", len(changes)))
}

func formatStrategyStats(stats resolve.Stats) string {
	sources := make([]string, 0, len(stats))
	for source := range stats {
		sources = append(sources, string(source))
	}
	sort.Strings(sources)

	var builder strings.Builder
	builder.WriteString("Strategies:\n")
	builder.WriteString(fmt.Sprintf("  %-8s %-9s %-10s %s\n", "Step", "Attempts", "Successes", "Failures"))
	builder.WriteString(fmt.Sprintf("  %-8s %-9s %-10s %s\n", "----", "--------", "---------", "--------"))
	for _, source := range sources {
		stat := stats[article.Source(source)]
		builder.WriteString(fmt.Sprintf("  %-8s %-9d %-10d %d\n", source, stat.Attempts, stat.Successes, stat.Failures))
	}
	return builder.String()
}
