package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coolbeans/legisync/pkg/article"
)

// Resolver obtains validated article text from the API.
type Resolver interface {
	Resolve(ctx context.Context, identifier article.Identifier) (*article.Resolved, error)
}

// Fallback obtains article text when the API cannot.
type Fallback interface {
	Fetch(ctx context.Context, identifier article.Identifier) (*article.Resolved, error)
}

// ReconcilerConfig holds configuration for a Reconciler.
type ReconcilerConfig struct {
	// Resolver is required.
	Resolver Resolver

	// Fallback is consulted only for articles without a valid previous entry.
	// Nil disables scraping.
	Fallback Fallback

	// Logger receives per-article diagnostics. Default: no-op.
	Logger *zap.Logger

	// Now is the clock used for lastVerified and metadata. Default: time.Now.
	Now func() time.Time
}

// Reconciler merges freshly resolved articles into a registry. It never drops
// a valid entry because of a transient resolution failure.
type Reconciler struct {
	resolver Resolver
	fallback Fallback
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(config ReconcilerConfig) *Reconciler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		resolver: config.Resolver,
		fallback: config.Fallback,
		logger:   logger.Named("registry"),
		now:      now,
	}
}

// Sync resolves every tracked article and returns the new registry together
// with a report. The previous registry is not modified. Only tracked articles
// appear in the result. The returned error is non-nil only when ctx ends the
// run early.
func (reconciler *Reconciler) Sync(ctx context.Context, definitions []Definition, previous *Registry) (*Registry, *Report, error) {
	if previous == nil {
		previous = New()
	}
	report := NewReport("sync", reconciler.now())
	updated := New()

	tracked := make(map[string]bool, len(definitions))
	for _, definition := range definitions {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("sync interrupted: %w", err)
		}

		canonical := definition.Canonical()
		tracked[canonical] = true

		var previousEntry *Entry
		if entry, found := previous.Articles[canonical]; found {
			previousEntry = &entry
		}

		entry, item, err := reconciler.syncArticle(ctx, definition, previousEntry)
		if err != nil {
			return nil, nil, err
		}
		report.RecordItem(item)
		if entry != nil {
			updated.Articles[canonical] = *entry
		}
	}

	for _, number := range previous.Numbers() {
		if !tracked[number] {
			report.Dropped = append(report.Dropped, number)
			reconciler.logger.Info("entry no longer tracked", zap.String("article", number))
		}
	}

	finishedAt := reconciler.now()
	updated.Metadata = ComputeMetadata(updated.Articles, finishedAt)
	report.Metadata = updated.Metadata
	report.FinishedAt = finishedAt
	return updated, report, nil
}

// SyncOne resolves a single article and merges it into a copy of the previous
// registry. Every other entry is left untouched.
func (reconciler *Reconciler) SyncOne(ctx context.Context, definition Definition, previous *Registry) (*Registry, *Report, error) {
	report := NewReport("article", reconciler.now())
	updated := previous.Clone()

	canonical := definition.Canonical()
	var previousEntry *Entry
	if entry, found := updated.Articles[canonical]; found {
		previousEntry = &entry
	}

	entry, item, err := reconciler.syncArticle(ctx, definition, previousEntry)
	if err != nil {
		return nil, nil, err
	}
	report.RecordItem(item)
	if entry != nil {
		updated.Articles[canonical] = *entry
	}

	finishedAt := reconciler.now()
	updated.Metadata = ComputeMetadata(updated.Articles, finishedAt)
	report.Metadata = updated.Metadata
	report.FinishedAt = finishedAt
	return updated, report, nil
}

// syncArticle returns the entry to store (nil when there is none) and the
// report item for one article.
func (reconciler *Reconciler) syncArticle(ctx context.Context, definition Definition, previousEntry *Entry) (*Entry, *ReportItem, error) {
	identifier := definition.Identifier()
	item := &ReportItem{
		Code:             definition.Code,
		Number:           definition.Canonical(),
		PreviousChecksum: previousEntry.ChecksumValue(),
	}

	resolved, err := reconciler.resolver.Resolve(ctx, identifier)
	if err == nil {
		entry := NewEntry(definition, resolved, reconciler.now())
		item.Source = resolved.Source
		item.Checksum = entry.ChecksumValue()
		item.WordCount = entry.WordCount
		item.Outcome = OutcomeRefreshed
		if item.TextChanged() {
			item.Outcome = OutcomeChanged
			reconciler.logger.Info("article text changed", zap.Stringer("article", identifier),
				zap.String("previous_checksum", item.PreviousChecksum), zap.String("checksum", item.Checksum))
		}
		return &entry, item, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, fmt.Errorf("sync interrupted at %s: %w", identifier, ctxErr)
	}

	item.Error = err.Error()
	if previousEntry.Valid() {
		reconciler.logger.Warn("article not refreshed, keeping previous entry",
			zap.Stringer("article", identifier), zap.Error(err))
		item.Outcome = OutcomeRetained
		item.Checksum = item.PreviousChecksum
		item.WordCount = previousEntry.WordCount
		return previousEntry, item, nil
	}

	if reconciler.fallback != nil {
		scraped, scrapeErr := reconciler.fallback.Fetch(ctx, identifier)
		if scrapeErr == nil {
			entry := NewEntry(definition, scraped, reconciler.now())
			item.Outcome = OutcomeFallback
			item.Source = article.SourceFallback
			item.Checksum = entry.ChecksumValue()
			item.WordCount = entry.WordCount
			item.Error = ""
			reconciler.logger.Warn("article taken from public website",
				zap.Stringer("article", identifier), zap.String("url", scraped.URL))
			return &entry, item, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, fmt.Errorf("sync interrupted at %s: %w", identifier, ctxErr)
		}
		err = errors.Join(err, fmt.Errorf("fallback: %w", scrapeErr))
		item.Error = err.Error()
	}

	reconciler.logger.Error("article unresolved", zap.Stringer("article", identifier), zap.Error(err))
	item.Outcome = OutcomeFailed
	return previousEntry, item, nil
}
