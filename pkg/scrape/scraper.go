// Package scrape is the last-resort source of article text: it searches the
// public Légifrance website and extracts the article body from the permalink
// page. Scraped articles are marked FALLBACK and are not number-validated.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/coolbeans/legisync/pkg/article"
	"github.com/coolbeans/legisync/pkg/legifrance"
)

// DefaultBaseURL is the public Légifrance site.
const DefaultBaseURL = "https://www.legifrance.gouv.fr"

// DefaultUserAgent is sent with scraping requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; legisync/2.3)"

// MinTextLength is the shortest page text accepted as an article body.
const MinTextLength = 20

var (
	// ErrNoPermalink means the search page listed no article permalink.
	ErrNoPermalink = errors.New("no article permalink on search page")

	// ErrNoContent means the article page held no usable text.
	ErrNoContent = errors.New("article page has no usable text")

	reArticleID = regexp.MustCompile(`LEGIARTI\d+`)

	boilerplate      = "nav, header, footer, script, style, noscript, aside"
	contentSelectors = []string{"article", ".article", "#article", "main", "body"}
)

// Config holds configuration for a Scraper.
type Config struct {
	// BaseURL is the site root. Default: https://www.legifrance.gouv.fr.
	BaseURL string

	// HTTPClient is the underlying HTTP client. If nil, an *http.Client with
	// Timeout is used.
	HTTPClient legifrance.HTTPClient

	// Timeout bounds each page fetch. Default: 30 seconds.
	Timeout time.Duration

	// RequestInterval spaces page fetches. Zero disables spacing.
	RequestInterval time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// Logger receives diagnostics. Default: no-op.
	Logger *zap.Logger
}

// Scraper fetches article text from the public website.
type Scraper struct {
	baseURL    *url.URL
	httpClient legifrance.HTTPClient
	userAgent  string
	logger     *zap.Logger
}

// New creates a Scraper.
func New(config Config) (*Scraper, error) {
	rawBase := config.BaseURL
	if rawBase == "" {
		rawBase = DefaultBaseURL
	}
	baseURL, err := url.Parse(strings.TrimRight(rawBase, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse scraper base URL %q: %w", rawBase, err)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	underlyingClient := config.HTTPClient
	if underlyingClient == nil {
		underlyingClient = &http.Client{Timeout: timeout}
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scraper{
		baseURL:    baseURL,
		httpClient: legifrance.NewRateLimitedHTTPClient(underlyingClient, config.RequestInterval),
		userAgent:  userAgent,
		logger:     logger.Named("scrape"),
	}, nil
}

// Fetch searches the site for the article and extracts its text. The result
// carries source FALLBACK and status VIGUEUR.
func (articleScraper *Scraper) Fetch(ctx context.Context, identifier article.Identifier) (*article.Resolved, error) {
	canonical := identifier.Canonical()
	searchURL := articleScraper.baseURL.ResolveReference(&url.URL{
		Path:     "search/code",
		RawQuery: url.Values{"query": {"article " + canonical}, "typePagination": {"DEFAULT"}}.Encode(),
	})

	searchPage, err := articleScraper.document(ctx, searchURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load search page for %s: %w", identifier, err)
	}

	permalink, err := articleScraper.firstPermalink(searchPage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", identifier, err)
	}

	articlePage, err := articleScraper.document(ctx, permalink)
	if err != nil {
		return nil, fmt.Errorf("failed to load article page %s: %w", permalink, err)
	}

	text := PageText(articlePage)
	if utf8.RuneCountInString(text) < MinTextLength {
		return nil, fmt.Errorf("%s: %w", permalink, ErrNoContent)
	}

	upstreamID := reArticleID.FindString(permalink)
	articleScraper.logger.Info("article scraped",
		zap.Stringer("article", identifier), zap.String("permalink", permalink), zap.Int("characters", len(text)))

	resolvedURL := article.Permalink(upstreamID)
	if resolvedURL == "" {
		resolvedURL = permalink
	}
	return &article.Resolved{
		Code:       identifier.Code,
		Number:     canonical,
		UpstreamID: upstreamID,
		Text:       text,
		Status:     article.StatusInForce,
		Source:     article.SourceFallback,
		URL:        resolvedURL,
		Checksum:   article.Checksum(text),
		WordCount:  article.WordCount(text),
	}, nil
}

// firstPermalink returns the first article permalink in the body of a search
// page, resolved against the base URL. Navigation links are ignored.
func (articleScraper *Scraper) firstPermalink(searchPage *goquery.Document) (string, error) {
	searchPage.Find(boilerplate).Remove()

	var permalink string
	searchPage.Find("a[href]").EachWithBreak(func(i int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		if !strings.Contains(href, "article_lc/") || !strings.Contains(href, "LEGIARTI") {
			return true
		}
		parsedHref, err := url.Parse(href)
		if err != nil {
			return true
		}
		permalink = articleScraper.baseURL.ResolveReference(parsedHref).String()
		return false
	})
	if permalink == "" {
		return "", ErrNoPermalink
	}
	return permalink, nil
}

// PageText removes page chrome and returns the whitespace-collapsed text of
// the first content container found.
func PageText(page *goquery.Document) string {
	page.Find(boilerplate).Remove()
	for _, selector := range contentSelectors {
		container := page.Find(selector).First()
		if container.Length() == 0 {
			continue
		}
		if text := strings.Join(strings.Fields(container.Text()), " "); text != "" {
			return text
		}
	}
	return ""
}

func (articleScraper *Scraper) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", pageURL, err)
	}
	request.Header.Set("User-Agent", articleScraper.userAgent)
	request.Header.Set("Accept", "text/html")
	request.Header.Set("Accept-Language", "fr")

	response, err := articleScraper.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil, fmt.Errorf("%s returned HTTP %d", pageURL, response.StatusCode)
	}

	page, err := goquery.NewDocumentFromReader(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}
	return page, nil
}
