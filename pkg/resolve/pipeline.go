// Package resolve turns a (code, article number) pair into validated article
// content by trying a fixed chain of lookup strategies against the Légifrance API.
package resolve

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/coolbeans/legisync/pkg/article"
)

// StrategyStats counts the outcomes of one strategy.
type StrategyStats struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Stats holds per-strategy counters, keyed by strategy source.
type Stats map[article.Source]StrategyStats

// Pipeline runs strategies in order and stops at the first validated article.
type Pipeline struct {
	strategies []Strategy
	logger     *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// NewPipeline creates a Pipeline over strategies, tried in the given order.
func NewPipeline(logger *zap.Logger, strategies ...Strategy) *Pipeline {
	return &Pipeline{
		strategies: strategies,
		logger:     nopIfNil(logger).Named("resolve"),
		stats:      make(Stats),
	}
}

// NewDefaultPipeline wires the table-of-contents, id+number and search
// strategies in that order.
func NewDefaultPipeline(api API, indexer IndexBuilder, logger *zap.Logger) *Pipeline {
	return NewPipeline(logger,
		NewTOCStrategy(api, indexer, logger),
		NewDirectStrategy(api, logger),
		NewSearchStrategy(api, logger),
	)
}

// Resolve returns the first article a strategy validates. When every strategy
// fails it returns an *UnresolvedError listing each step's cause. A context
// cancellation aborts the chain and is returned as is.
func (pipeline *Pipeline) Resolve(ctx context.Context, identifier article.Identifier) (*article.Resolved, error) {
	unresolved := &UnresolvedError{Identifier: identifier}

	for _, strategy := range pipeline.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resolved, err := pipeline.attempt(ctx, strategy, identifier)
		if err == nil && resolved != nil {
			pipeline.record(strategy.Name(), true)
			pipeline.logger.Debug("article resolved",
				zap.Stringer("article", identifier),
				zap.String("source", string(strategy.Name())),
				zap.String("upstream_id", resolved.UpstreamID))
			return resolved, nil
		}
		if err == nil {
			err = ErrNoCandidate
		}
		pipeline.record(strategy.Name(), false)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		pipeline.logger.Debug("strategy failed",
			zap.Stringer("article", identifier),
			zap.String("source", string(strategy.Name())),
			zap.Error(err))
		unresolved.Steps = append(unresolved.Steps, StepFailure{Source: strategy.Name(), Err: err})
	}

	return nil, unresolved
}

// attempt runs one strategy and turns a panic into an error.
func (pipeline *Pipeline) attempt(ctx context.Context, strategy Strategy, identifier article.Identifier) (resolved *article.Resolved, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			pipeline.logger.Error("strategy panicked",
				zap.String("source", string(strategy.Name())),
				zap.Any("panic", recovered))
			resolved = nil
			err = fmt.Errorf("strategy %s panicked: %v", strategy.Name(), recovered)
		}
	}()
	return strategy.Attempt(ctx, identifier)
}

func (pipeline *Pipeline) record(source article.Source, succeeded bool) {
	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	counters := pipeline.stats[source]
	counters.Attempts++
	if succeeded {
		counters.Successes++
	} else {
		counters.Failures++
	}
	pipeline.stats[source] = counters
}

// Stats returns a snapshot of the per-strategy counters.
func (pipeline *Pipeline) Stats() Stats {
	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	snapshot := make(Stats, len(pipeline.stats))
	for source, counters := range pipeline.stats {
		snapshot[source] = counters
	}
	return snapshot
}
