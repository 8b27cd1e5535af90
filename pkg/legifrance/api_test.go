package legifrance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableOfContents_FallsBackToCidKey(t *testing.T) {
	fake := newFakePiste(t)
	var bodies []map[string]any
	fake.handle(func(w http.ResponseWriter, r *http.Request, token string) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		if _, usesTextCid := body["textCid"]; usesTextCid {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"textCid unsupported"}`)
			return
		}
		fmt.Fprint(w, `{"sections":[{"articles":[{"id":"LEGIARTI000001","num":"L217-3"}]}]}`)
	})
	legifranceClient, _, _ := newTestClient(t, fake, nil)

	tree, err := legifranceClient.TableOfContents(context.Background(), "LEGITEXT000006069565")
	require.NoError(t, err)
	assert.Contains(t, tree, "sections")

	expectedBodies := []map[string]any{
		{"nature": "CODE", "textCid": "LEGITEXT000006069565"},
		{"nature": "CODE", "cid": "LEGITEXT000006069565"},
	}
	if diff := cmp.Diff(expectedBodies, bodies); diff != "" {
		t.Errorf("request bodies mismatch (-want +got):\n%s", diff)
	}
}

func TestTableOfContents_BothShapesRejected(t *testing.T) {
	fake := newFakePiste(t)
	fake.handle(func(w http.ResponseWriter, r *http.Request, token string) {
		w.WriteHeader(http.StatusBadRequest)
	})
	legifranceClient, _, _ := newTestClient(t, fake, nil)

	_, err := legifranceClient.TableOfContents(context.Background(), "LEGITEXT000006069565")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "tableMatieres", apiErr.Operation)
	assert.Equal(t, int32(2), fake.apiCalls.Load())
}

func TestGetArticle_NotFound(t *testing.T) {
	fake := newFakePiste(t)
	fake.handle(func(w http.ResponseWriter, r *http.Request, token string) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"article inconnu"}`)
	})
	legifranceClient, _, _ := newTestClient(t, fake, nil)

	_, err := legifranceClient.GetArticle(context.Background(), "LEGIARTI999")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "article inconnu")
}

func TestGetArticle_DecodesNumbersAsJSONNumber(t *testing.T) {
	fake := newFakePiste(t)
	fake.handle(func(w http.ResponseWriter, r *http.Request, token string) {
		fmt.Fprint(w, `{"article":{"id":"LEGIARTI000044142140","dateDebut":1640995200000}}`)
	})
	legifranceClient, _, _ := newTestClient(t, fake, nil)

	answer, err := legifranceClient.GetArticle(context.Background(), "LEGIARTI000044142140")
	require.NoError(t, err)
	articleObject, ok := answer["article"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("1640995200000"), articleObject["dateDebut"])
}

func TestGetArticleWithIDAndNum_Body(t *testing.T) {
	fake := newFakePiste(t)
	var body map[string]any
	fake.handle(func(w http.ResponseWriter, r *http.Request, token string) {
		assert.Equal(t, "/api/consult/getArticleWithIdAndNum", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"article":null}`)
	})
	legifranceClient, _, _ := newTestClient(t, fake, nil)

	_, err := legifranceClient.GetArticleWithIDAndNum(context.Background(), "LEGITEXT000006070721", "1641")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "LEGITEXT000006070721", "num": "1641"}, body)
}

func TestSearchQueryPayload(t *testing.T) {
	dated := SearchQuery{
		Number:   "L.217-3",
		CodeName: "Code de la consommation",
		TextCID:  "LEGITEXT000006069565",
		Date:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	}.Payload()

	assert.Equal(t, "CODE_DATE", dated["fond"])
	recherche := dated["recherche"].(map[string]any)
	assert.Equal(t, DefaultSearchPageSize, recherche["pageSize"])
	assert.Equal(t, "ARTICLE", recherche["typePagination"])

	filters := recherche["filtres"].([]any)
	require.Len(t, filters, 3)
	assert.Equal(t, map[string]any{"facette": "NOM_CODE", "valeurs": []any{"Code de la consommation"}}, filters[0])
	assert.Equal(t, map[string]any{"facette": "ID_CODE", "valeurs": []any{"LEGITEXT000006069565"}}, filters[1])
	assert.Equal(t, map[string]any{"facette": "DATE_VERSION", "singleDate": int64(1736899200000)}, filters[2])

	champs := recherche["champs"].([]any)
	criteres := champs[0].(map[string]any)["criteres"].([]any)
	assert.Equal(t, "EXACTE", criteres[0].(map[string]any)["typeRecherche"])
	assert.Equal(t, "L.217-3", criteres[0].(map[string]any)["valeur"])

	undated := SearchQuery{Number: "1641", CodeName: "Code civil"}.Payload()
	assert.Equal(t, "CODE_ETAT", undated["fond"])
	undatedFilters := undated["recherche"].(map[string]any)["filtres"].([]any)
	assert.Equal(t, map[string]any{"facette": "TEXT_LEGAL_STATUS", "valeur": "VIGUEUR"}, undatedFilters[len(undatedFilters)-1])
}

func TestSearchResults(t *testing.T) {
	first := map[string]any{"results": []any{"a"}}
	second := map[string]any{"searchResults": []any{"b", "c"}}

	assert.Equal(t, []any{"a"}, SearchResults(first))
	assert.Equal(t, []any{"b", "c"}, SearchResults(second))
	assert.Nil(t, SearchResults(map[string]any{"totalResultNumber": 0}))
}
