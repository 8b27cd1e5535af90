package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coolbeans/legisync/pkg/registry"
)

func watchCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync articles as they are added to the tracked-articles file",
		Long: `Watch the tracked-articles file given with --tracked and resolve every
article that is added or whose label, code or priority changes, merging each
into the registry as "legisync article" would. Removed articles stay in the
registry until the next full sync. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.config.TrackedPath == "" {
				return errors.New("watch needs a tracked-articles file (--tracked)")
			}
			trackedWatcher, err := registry.NewTrackedWatcher(app.config.TrackedPath, app.logger)
			if err != nil {
				return err
			}
			runSyncer, err := app.newSyncer(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(app.stdout, "Watching %s (%d articles)\n", app.config.TrackedPath, len(trackedWatcher.Definitions()))
			return trackedWatcher.Run(cmd.Context(), func(changes registry.DefinitionChanges) {
				app.applyDefinitionChanges(cmd.Context(), runSyncer, changes)
			})
		},
	}
}

// applyDefinitionChanges syncs added and updated definitions one by one.
// Failures are reported and the watch goes on.
func (app *cli) applyDefinitionChanges(ctx context.Context, runSyncer *syncer, changes registry.DefinitionChanges) {
	for _, definition := range changes.Removed {
		fmt.Fprintf(app.stdout, "%s is no longer tracked; it leaves the registry on the next sync\n", definition.Canonical())
	}

	for _, definition := range append(changes.Added, changes.Updated...) {
		previous, err := registry.Load(app.config.RegistryPath)
		if err != nil {
			app.logger.Error("failed to load registry", zap.Error(err))
			return
		}
		updated, report, err := runSyncer.reconciler.SyncOne(ctx, definition, previous)
		if err != nil {
			app.logger.Warn("article sync interrupted", zap.String("article", definition.Canonical()), zap.Error(err))
			return
		}
		if err := app.finish(ctx, runSyncer, previous, updated, report); err != nil {
			fmt.Fprintf(app.stdout, "%s: %v\n", definition.Canonical(), err)
		}
	}
}
