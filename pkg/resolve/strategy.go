package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coolbeans/legisync/pkg/article"
	"github.com/coolbeans/legisync/pkg/legifrance"
	"github.com/coolbeans/legisync/pkg/toc"
)

// Strategy is one way of finding an article upstream. Attempt returns a
// validated article, or nil and the reason it failed.
type Strategy interface {
	Name() article.Source
	Attempt(ctx context.Context, identifier article.Identifier) (*article.Resolved, error)
}

// API is the subset of the Légifrance client used by the strategies.
type API interface {
	GetArticle(ctx context.Context, articleID string) (map[string]any, error)
	GetArticleWithIDAndNum(ctx context.Context, textCID, number string) (map[string]any, error)
	Search(ctx context.Context, query legifrance.SearchQuery) (map[string]any, error)
}

// IndexBuilder returns the table-of-contents index of a code.
type IndexBuilder interface {
	Build(ctx context.Context, code article.Code) (toc.Index, error)
}

// fetchAndValidate loads an article by id and validates it.
func fetchAndValidate(ctx context.Context, api API, identifier article.Identifier, articleID string, source article.Source) (*article.Resolved, error) {
	answer, err := api.GetArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", articleID, err)
	}
	object := ArticleObject(answer)
	text, err := validate(identifier.Canonical(), object)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", articleID, err)
	}
	return buildResolved(identifier, object, text, articleID, source), nil
}

// TOCStrategy looks the number up in the code's table-of-contents index and
// fetches candidates from most to least preferred.
type TOCStrategy struct {
	api     API
	indexer IndexBuilder
	logger  *zap.Logger
}

// NewTOCStrategy creates a TOCStrategy.
func NewTOCStrategy(api API, indexer IndexBuilder, logger *zap.Logger) *TOCStrategy {
	return &TOCStrategy{api: api, indexer: indexer, logger: nopIfNil(logger)}
}

// Name returns article.SourceTOC.
func (tocStrategy *TOCStrategy) Name() article.Source { return article.SourceTOC }

// Attempt resolves through the table of contents. An unavailable table of
// contents counts as having no candidate.
func (tocStrategy *TOCStrategy) Attempt(ctx context.Context, identifier article.Identifier) (*article.Resolved, error) {
	index, err := tocStrategy.indexer.Build(ctx, identifier.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoCandidate, err)
	}

	candidates := toc.Rank(index.Lookup(identifier.Number))
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s not in table of contents", ErrNoCandidate, identifier)
	}

	var failures []error
	for _, candidate := range candidates {
		resolved, err := fetchAndValidate(ctx, tocStrategy.api, identifier, candidate.UpstreamID, article.SourceTOC)
		if err == nil {
			return resolved, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		tocStrategy.logger.Debug("toc candidate rejected",
			zap.Stringer("article", identifier), zap.String("candidate", candidate.UpstreamID), zap.Error(err))
		failures = append(failures, err)
	}
	return nil, errors.Join(failures...)
}

// DirectStrategy asks the id+number endpoint for every spelling variant of the
// number.
type DirectStrategy struct {
	api    API
	logger *zap.Logger
}

// NewDirectStrategy creates a DirectStrategy.
func NewDirectStrategy(api API, logger *zap.Logger) *DirectStrategy {
	return &DirectStrategy{api: api, logger: nopIfNil(logger)}
}

// Name returns article.SourceIDNum.
func (directStrategy *DirectStrategy) Name() article.Source { return article.SourceIDNum }

// Attempt tries each variant in order. The article object of the first
// answer carrying an id or content is validated; a rejected answer moves on to
// the next variant.
func (directStrategy *DirectStrategy) Attempt(ctx context.Context, identifier article.Identifier) (*article.Resolved, error) {
	textCID := identifier.Code.TextCID()
	if textCID == "" {
		return nil, fmt.Errorf("%w: no text id for code %s", ErrNoCandidate, identifier.Code)
	}

	var failures []error
	for _, variant := range article.Variants(identifier.Number) {
		answer, err := directStrategy.api.GetArticleWithIDAndNum(ctx, textCID, variant)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			directStrategy.logger.Debug("id+num lookup failed",
				zap.Stringer("article", identifier), zap.String("variant", variant), zap.Error(err))
			failures = append(failures, err)
			continue
		}

		object := ArticleObject(answer)
		if !hasContent(object) {
			failures = append(failures, fmt.Errorf("%w: empty answer for %q", ErrNoCandidate, variant))
			continue
		}

		text, err := validate(identifier.Canonical(), object)
		if err != nil {
			directStrategy.logger.Debug("id+num answer rejected",
				zap.Stringer("article", identifier), zap.String("variant", variant), zap.Error(err))
			failures = append(failures, err)
			continue
		}
		return buildResolved(identifier, object, text, "", article.SourceIDNum), nil
	}

	if len(failures) == 0 {
		return nil, ErrNoCandidate
	}
	return nil, errors.Join(failures...)
}

// SearchStrategy runs the structured search, first restricted to versions in
// force today, then without a date.
type SearchStrategy struct {
	api    API
	logger *zap.Logger
	now    func() time.Time
}

// NewSearchStrategy creates a SearchStrategy.
func NewSearchStrategy(api API, logger *zap.Logger) *SearchStrategy {
	return &SearchStrategy{api: api, logger: nopIfNil(logger), now: time.Now}
}

// Name returns article.SourceSearch.
func (searchStrategy *SearchStrategy) Name() article.Source { return article.SourceSearch }

// Attempt resolves through /search.
func (searchStrategy *SearchStrategy) Attempt(ctx context.Context, identifier article.Identifier) (*article.Resolved, error) {
	var failures []error
	for _, date := range []time.Time{searchStrategy.now(), {}} {
		query := legifrance.SearchQuery{
			Number:   identifier.Canonical(),
			CodeName: identifier.Code.Name(),
			TextCID:  identifier.Code.TextCID(),
			Date:     date,
		}
		answer, err := searchStrategy.api.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			searchStrategy.logger.Debug("search failed",
				zap.Stringer("article", identifier), zap.Bool("dated", !date.IsZero()), zap.Error(err))
			failures = append(failures, err)
			continue
		}

		articleID := FirstArticleID(legifrance.SearchResults(answer))
		if articleID == "" {
			failures = append(failures, fmt.Errorf("%w: search returned no article id (dated=%t)", ErrNoCandidate, !date.IsZero()))
			continue
		}

		resolved, err := fetchAndValidate(ctx, searchStrategy.api, identifier, articleID, article.SourceSearch)
		if err == nil {
			return resolved, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		searchStrategy.logger.Debug("search candidate rejected",
			zap.Stringer("article", identifier), zap.String("candidate", articleID), zap.Error(err))
		failures = append(failures, err)
	}
	return nil, errors.Join(failures...)
}

// FirstArticleID returns the first LEGIARTI identifier of a search result list.
func FirstArticleID(results []any) string {
	for _, result := range results {
		object, ok := result.(map[string]any)
		if !ok {
			continue
		}
		for _, field := range []string{"id", "cid", "articleId"} {
			if value, ok := object[field].(string); ok && strings.HasPrefix(value, toc.ArticleIDPrefix) {
				return value
			}
		}
	}
	return ""
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
