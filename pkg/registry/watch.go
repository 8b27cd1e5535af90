package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/fsnotify.v1"
)

// DefaultWatchDebounce coalesces the burst of events an editor save produces.
const DefaultWatchDebounce = 500 * time.Millisecond

// DefinitionChanges is the difference between two tracked sets.
type DefinitionChanges struct {
	Added   []Definition
	Updated []Definition
	Removed []Definition
}

// Empty reports whether nothing changed.
func (changes DefinitionChanges) Empty() bool {
	return len(changes.Added) == 0 && len(changes.Updated) == 0 && len(changes.Removed) == 0
}

// DiffDefinitions compares two tracked sets by canonical number. A definition
// whose code, label or priority differs is reported as updated.
func DiffDefinitions(before, after []Definition) DefinitionChanges {
	previous := make(map[string]Definition, len(before))
	for _, definition := range before {
		previous[definition.Canonical()] = definition
	}

	var changes DefinitionChanges
	current := make(map[string]bool, len(after))
	for _, definition := range after {
		canonical := definition.Canonical()
		current[canonical] = true
		old, found := previous[canonical]
		switch {
		case !found:
			changes.Added = append(changes.Added, definition)
		case old.Code != definition.Code || old.DisplayLabel() != definition.DisplayLabel() || old.Priority != definition.Priority:
			changes.Updated = append(changes.Updated, definition)
		}
	}
	for _, definition := range before {
		if !current[definition.Canonical()] {
			changes.Removed = append(changes.Removed, definition)
		}
	}
	return changes
}

// TrackedWatcher reloads a tracked-articles file whenever it changes on disk
// and reports the difference with the last valid version.
type TrackedWatcher struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger
	current  []Definition
}

// NewTrackedWatcher loads the file once and prepares to watch it.
func NewTrackedWatcher(path string, logger *zap.Logger) (*TrackedWatcher, error) {
	definitions, err := LoadDefinitions(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackedWatcher{
		path:     path,
		debounce: DefaultWatchDebounce,
		logger:   logger.Named("tracked"),
		current:  definitions,
	}, nil
}

// Definitions returns the last valid tracked set.
func (trackedWatcher *TrackedWatcher) Definitions() []Definition {
	return trackedWatcher.current
}

// SetDebounce changes the quiet period before a reload.
func (trackedWatcher *TrackedWatcher) SetDebounce(debounce time.Duration) {
	trackedWatcher.debounce = debounce
}

// Run blocks until ctx ends, calling onChange after each reload that changed
// the tracked set. The containing directory is watched so that editors which
// replace the file by rename are followed. An invalid file is logged and
// ignored until it is fixed.
func (trackedWatcher *TrackedWatcher) Run(ctx context.Context, onChange func(DefinitionChanges)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	directory := filepath.Dir(trackedWatcher.path)
	if err := watcher.Add(directory); err != nil {
		return fmt.Errorf("watching directory %s: %w", directory, err)
	}
	target := filepath.Clean(trackedWatcher.path)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				timer.Reset(trackedWatcher.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			trackedWatcher.logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			trackedWatcher.reload(onChange)
		}
	}
}

func (trackedWatcher *TrackedWatcher) reload(onChange func(DefinitionChanges)) {
	definitions, err := LoadDefinitions(trackedWatcher.path)
	if err != nil {
		trackedWatcher.logger.Warn("ignoring invalid tracked articles file", zap.String("path", trackedWatcher.path), zap.Error(err))
		return
	}

	changes := DiffDefinitions(trackedWatcher.current, definitions)
	trackedWatcher.current = definitions
	if changes.Empty() {
		return
	}
	trackedWatcher.logger.Info("tracked articles changed",
		zap.Int("added", len(changes.Added)), zap.Int("updated", len(changes.Updated)), zap.Int("removed", len(changes.Removed)))
	onChange(changes)
}
