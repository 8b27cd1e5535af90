package legifrance

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClient is an interface matching the Do method of *http.Client.
// This allows injection of mock clients for testing and custom transports.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultRequestInterval is the minimum spacing between two upstream calls.
const DefaultRequestInterval = 250 * time.Millisecond

// RateLimitedHTTPClient wraps an HTTPClient with a limiter that enforces a
// minimum interval between requests. Waiting honours the request context.
type RateLimitedHTTPClient struct {
	underlying HTTPClient
	limiter    *rate.Limiter
}

// NewRateLimitedHTTPClient creates a rate-limited HTTP client. A non-positive
// interval disables the limit.
func NewRateLimitedHTTPClient(underlying HTTPClient, requestInterval time.Duration) *RateLimitedHTTPClient {
	limit := rate.Inf
	if requestInterval > 0 {
		limit = rate.Every(requestInterval)
	}
	return &RateLimitedHTTPClient{
		underlying: underlying,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Do waits for the limiter, then executes the request.
func (rateLimitedClient *RateLimitedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if err := rateLimitedClient.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return rateLimitedClient.underlying.Do(req)
}

// roundTripperFunc adapts an HTTPClient into an http.RoundTripper so the oauth2
// package, which needs a concrete *http.Client, goes through the same transport.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (fn roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

func asStdClient(client HTTPClient, timeout time.Duration) *http.Client {
	if stdClient, ok := client.(*http.Client); ok {
		return stdClient
	}
	return &http.Client{
		Transport: roundTripperFunc(client.Do),
		Timeout:   timeout,
	}
}
