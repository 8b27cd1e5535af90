package toc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/coolbeans/legisync/pkg/article"
)

// ErrTOCUnavailable is returned when a table of contents cannot be fetched or
// holds no recognizable article. Callers treat it as "no candidates".
var ErrTOCUnavailable = errors.New("table of contents unavailable")

// Index maps canonical article numbers to every version found, in document order.
type Index map[string][]Candidate

// Lookup returns the candidates of a number in any spelling.
func (index Index) Lookup(number string) []Candidate {
	return index[article.Normalize(number)]
}

// Articles returns the number of distinct article numbers in the index.
func (index Index) Articles() int {
	return len(index)
}

// BuildIndex walks a table-of-contents tree and collects every article node.
func BuildIndex(tree any) Index {
	index := make(Index)
	Walk(tree, func(node Node) bool {
		if node.Kind != KindObject {
			return true
		}
		if candidate, found := ArticleNode(node.Object()); found {
			index[candidate.Number] = append(index[candidate.Number], candidate)
		}
		return true
	})
	return index
}

// Fetcher retrieves the raw table of contents of a code by its LEGITEXT id.
type Fetcher interface {
	TableOfContents(ctx context.Context, textCID string) (map[string]any, error)
}

// Indexer builds and memoizes one Index per code. Construct one per sync run;
// indexes are never invalidated during the Indexer's lifetime. Failed fetches
// are not cached, so a later Build retries.
type Indexer struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu      sync.Mutex
	indexes map[article.Code]Index
}

// NewIndexer creates an Indexer. A nil logger disables logging.
func NewIndexer(fetcher Fetcher, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		fetcher: fetcher,
		logger:  logger.Named("toc"),
		indexes: make(map[article.Code]Index),
	}
}

// Build returns the index of code, fetching the table of contents on first use.
func (tocIndexer *Indexer) Build(ctx context.Context, code article.Code) (Index, error) {
	tocIndexer.mu.Lock()
	defer tocIndexer.mu.Unlock()

	if cached, found := tocIndexer.indexes[code]; found {
		return cached, nil
	}

	textCID := code.TextCID()
	if textCID == "" {
		return nil, fmt.Errorf("%w: no text id for code %s", ErrTOCUnavailable, code)
	}

	tree, err := tocIndexer.fetcher.TableOfContents(ctx, textCID)
	if err != nil {
		tocIndexer.logger.Warn("table of contents fetch failed", zap.String("code", string(code)), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrTOCUnavailable, code, err)
	}

	index := BuildIndex(tree)
	if len(index) == 0 {
		tocIndexer.logger.Warn("table of contents holds no article", zap.String("code", string(code)))
		return nil, fmt.Errorf("%w: %s: no article node found", ErrTOCUnavailable, code)
	}

	tocIndexer.logger.Info("table of contents indexed",
		zap.String("code", string(code)), zap.Int("articles", len(index)))
	tocIndexer.indexes[code] = index
	return index, nil
}

// Cached reports whether the index of code is already memoized.
func (tocIndexer *Indexer) Cached(code article.Code) bool {
	tocIndexer.mu.Lock()
	defer tocIndexer.mu.Unlock()
	_, found := tocIndexer.indexes[code]
	return found
}
