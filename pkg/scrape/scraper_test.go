package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolbeans/legisync/pkg/article"
)

const searchPage = `<html><body>
<header><a href="/codes/article_lc/LEGIARTI000000000001">header link</a></header>
<main>
  <a href="/search/code?page=2">next page</a>
  <a href="/codes/article_lc/LEGIARTI000044142140?isSuggest=true">Article L217-3</a>
  <a href="/codes/article_lc/LEGIARTI000044142142">Article L217-4</a>
</main>
</body></html>`

const articlePage = `<html><head><title>Article L217-3</title><style>.x{color:red}</style></head>
<body>
<nav>Accueil &gt; Codes</nav>
<header>Légifrance</header>
<main>
  <aside>Versions</aside>
  <article>
    <h1>Article L217-3</h1>
    <p>Le vendeur délivre un bien conforme au contrat ainsi qu'aux critères
       énoncés à l'article L. 217-5.</p>
    <script>track()</script>
  </article>
</main>
<footer>Mentions légales</footer>
</body></html>`

func newSiteServer(t *testing.T, search, articleHTML string) (*httptest.Server, *[]string) {
	t.Helper()
	var requested []string
	mux := http.NewServeMux()
	mux.HandleFunc("/search/code", func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.RequestURI())
		fmt.Fprint(w, search)
	})
	mux.HandleFunc("/codes/article_lc/", func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		if articleHTML == "" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, articleHTML)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &requested
}

func newTestScraper(t *testing.T, server *httptest.Server) *Scraper {
	t.Helper()
	articleScraper, err := New(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)
	return articleScraper
}

func TestFetch_ExtractsFirstPermalinkAndStripsChrome(t *testing.T) {
	server, requested := newSiteServer(t, searchPage, articlePage)
	articleScraper := newTestScraper(t, server)

	resolved, err := articleScraper.Fetch(context.Background(),
		article.Identifier{Code: article.CodeConsommation, Number: "L217-3"})
	require.NoError(t, err)

	assert.Equal(t, article.SourceFallback, resolved.Source)
	assert.Equal(t, article.StatusInForce, resolved.Status)
	assert.Equal(t, "L.217-3", resolved.Number)
	assert.Equal(t, "LEGIARTI000044142140", resolved.UpstreamID)
	assert.Equal(t, "https://www.legifrance.gouv.fr/codes/article_lc/LEGIARTI000044142140", resolved.URL)
	assert.Equal(t,
		"Article L217-3 Le vendeur délivre un bien conforme au contrat ainsi qu'aux critères énoncés à l'article L. 217-5.",
		resolved.Text)
	assert.Equal(t, article.Checksum(resolved.Text), resolved.Checksum)

	require.Len(t, *requested, 2)
	assert.Equal(t, "/search/code?query=article+L.217-3&typePagination=DEFAULT", (*requested)[0])
	assert.Equal(t, "/codes/article_lc/LEGIARTI000044142140", (*requested)[1])
}

func TestFetch_NoPermalink(t *testing.T) {
	server, _ := newSiteServer(t, `<html><body><a href="/aide">Aide</a></body></html>`, articlePage)
	articleScraper := newTestScraper(t, server)

	_, err := articleScraper.Fetch(context.Background(), article.Identifier{Code: article.CodeCivil, Number: "1641"})
	assert.ErrorIs(t, err, ErrNoPermalink)
}

func TestFetch_ShortPageRejected(t *testing.T) {
	server, _ := newSiteServer(t, searchPage, `<html><body><nav>Menu principal du site</nav><main>Vide.</main></body></html>`)
	articleScraper := newTestScraper(t, server)

	_, err := articleScraper.Fetch(context.Background(), article.Identifier{Code: article.CodeConsommation, Number: "L.217-3"})
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestFetch_ArticlePageError(t *testing.T) {
	server, _ := newSiteServer(t, searchPage, "")
	articleScraper := newTestScraper(t, server)

	_, err := articleScraper.Fetch(context.Background(), article.Identifier{Code: article.CodeConsommation, Number: "L.217-3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestPageText_SelectorOrder(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{"article class", `<body><div class="article">Texte de classe</div><main>Principal</main></body>`, "Texte de classe"},
		{"article id", `<body><div id="article">Texte identifié</div></body>`, "Texte identifié"},
		{"main", `<body><header>Entête</header><main> Texte   principal </main></body>`, "Texte principal"},
		{"body fallback", `<body><footer>Pied</footer><p>Seulement le corps</p></body>`, "Seulement le corps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, PageText(page))
		})
	}
}
