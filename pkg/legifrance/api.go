package legifrance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Endpoint paths relative to the API root.
const (
	PathTableOfContents     = "/consult/legi/tableMatieres"
	PathGetArticle          = "/consult/getArticle"
	PathGetArticleWithIDNum = "/consult/getArticleWithIdAndNum"
	PathSearch              = "/search"
)

// DefaultSearchPageSize is the number of results requested per search.
const DefaultSearchPageSize = 10

// TableOfContents fetches the table of contents of a code by its LEGITEXT id.
// The request is tried with the "textCid" key first, then with "cid".
func (legifranceClient *Client) TableOfContents(ctx context.Context, textCID string) (map[string]any, error) {
	bodies := []map[string]any{
		{"nature": "CODE", "textCid": textCID},
		{"nature": "CODE", "cid": textCID},
	}

	var lastErr error
	for _, body := range bodies {
		tree, err := legifranceClient.call(ctx, "tableMatieres", PathTableOfContents, body)
		if err == nil {
			return tree, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		lastErr = err
		legifranceClient.logger.Debug("table of contents request rejected",
			zap.String("text_cid", textCID), zap.Int("status", apiErr.StatusCode))
	}
	return nil, lastErr
}

// GetArticle fetches an article by its LEGIARTI id.
func (legifranceClient *Client) GetArticle(ctx context.Context, articleID string) (map[string]any, error) {
	return legifranceClient.call(ctx, "getArticle", PathGetArticle, map[string]any{"id": articleID})
}

// GetArticleWithIDAndNum fetches an article by code id and article number.
func (legifranceClient *Client) GetArticleWithIDAndNum(ctx context.Context, textCID, number string) (map[string]any, error) {
	return legifranceClient.call(ctx, "getArticleWithIdAndNum", PathGetArticleWithIDNum,
		map[string]any{"id": textCID, "num": number})
}

// SearchQuery describes a structured article-number search.
type SearchQuery struct {
	// Number is matched exactly against NUM_ARTICLE.
	Number string

	// CodeName is the NOM_CODE facet value, e.g. "Code civil".
	CodeName string

	// TextCID is the ID_CODE facet value.
	TextCID string

	// Date restricts to versions in force at that date. Zero searches the
	// current state of the code.
	Date time.Time

	// PageSize defaults to DefaultSearchPageSize.
	PageSize int
}

// Payload builds the /search request body.
func (query SearchQuery) Payload() map[string]any {
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = DefaultSearchPageSize
	}

	filters := []any{}
	if query.CodeName != "" {
		filters = append(filters, map[string]any{"facette": "NOM_CODE", "valeurs": []any{query.CodeName}})
	}
	if query.TextCID != "" {
		filters = append(filters, map[string]any{"facette": "ID_CODE", "valeurs": []any{query.TextCID}})
	}

	fond := "CODE_ETAT"
	if !query.Date.IsZero() {
		fond = "CODE_DATE"
		filters = append(filters, map[string]any{
			"facette":    "DATE_VERSION",
			"singleDate": query.Date.UnixMilli(),
		})
	} else {
		filters = append(filters, map[string]any{"facette": "TEXT_LEGAL_STATUS", "valeur": "VIGUEUR"})
	}

	return map[string]any{
		"fond": fond,
		"recherche": map[string]any{
			"champs": []any{
				map[string]any{
					"typeChamp": "NUM_ARTICLE",
					"operateur": "ET",
					"criteres": []any{
						map[string]any{
							"typeRecherche": "EXACTE",
							"valeur":        query.Number,
							"operateur":     "ET",
						},
					},
				},
			},
			"filtres":        filters,
			"pageNumber":     1,
			"pageSize":       pageSize,
			"operateur":      "ET",
			"sort":           "PERTINENCE",
			"typePagination": "ARTICLE",
		},
	}
}

// Search runs a structured search and returns the raw answer.
func (legifranceClient *Client) Search(ctx context.Context, query SearchQuery) (map[string]any, error) {
	return legifranceClient.call(ctx, "search", PathSearch, query.Payload())
}

// SearchResults returns the result list of a search answer, which the provider
// publishes under "results" or "searchResults".
func SearchResults(answer map[string]any) []any {
	for _, key := range []string{"results", "searchResults"} {
		if results, ok := answer[key].([]any); ok {
			return results
		}
	}
	return nil
}

func (legifranceClient *Client) call(ctx context.Context, operation, path string, body any) (map[string]any, error) {
	response, err := legifranceClient.Do(ctx, path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, &APIError{Operation: operation, StatusCode: response.StatusCode, Body: string(response.Body)}
	}
	tree, err := decodeTree(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s answer: %w", operation, err)
	}
	return tree, nil
}
