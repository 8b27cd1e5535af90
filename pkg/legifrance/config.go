package legifrance

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Environment selects the PISTE deployment the client talks to.
type Environment string

const (
	// EnvironmentProduction is the live PISTE gateway.
	EnvironmentProduction Environment = "prod"

	// EnvironmentSandbox is the PISTE sandbox gateway.
	EnvironmentSandbox Environment = "sandbox"
)

const (
	productionTokenURL = "https://oauth.piste.gouv.fr/api/oauth/token"
	productionBaseURL  = "https://api.piste.gouv.fr/dila/legifrance/lf-engine-app"
	sandboxTokenURL    = "https://sandbox-oauth.piste.gouv.fr/api/oauth/token"
	sandboxBaseURL     = "https://sandbox-api.piste.gouv.fr/dila/legifrance/lf-engine-app"
)

// ParseEnvironment accepts "prod"/"production" and "sandbox", case-insensitively.
// An empty value selects production.
func ParseEnvironment(raw string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "prod", "production":
		return EnvironmentProduction, nil
	case "sandbox":
		return EnvironmentSandbox, nil
	default:
		return "", fmt.Errorf("unknown legifrance environment %q (want prod or sandbox)", raw)
	}
}

// TokenURL returns the OAuth token endpoint of the environment.
func (environment Environment) TokenURL() string {
	if environment == EnvironmentSandbox {
		return sandboxTokenURL
	}
	return productionTokenURL
}

// BaseURL returns the API root of the environment.
func (environment Environment) BaseURL() string {
	if environment == EnvironmentSandbox {
		return sandboxBaseURL
	}
	return productionBaseURL
}

// DefaultUserAgent is the User-Agent header sent with every request.
const DefaultUserAgent = "legisync/2.3 (+legal-registry-sync)"

const (
	// DefaultTimeout bounds a single HTTP call.
	DefaultTimeout = 40 * time.Second

	// DefaultMaxRetries is the number of attempts for server and network errors.
	DefaultMaxRetries = 4

	// DefaultBackoffBase is the first backoff delay; it doubles on each attempt.
	DefaultBackoffBase = 700 * time.Millisecond

	// maxBackoff caps a single backoff delay.
	maxBackoff = 10 * time.Second

	// expiryMargin is subtracted from the provider token lifetime.
	expiryMargin = 120 * time.Second

	// defaultTokenLifetime applies when the provider omits expires_in.
	defaultTokenLifetime = 3600 * time.Second

	// minRateLimitPause is the shortest wait after an HTTP 429.
	minRateLimitPause = 1500 * time.Millisecond
)

// ClientConfig holds configuration for a Client.
type ClientConfig struct {
	// Environment selects production or sandbox endpoints.
	// Default: prod.
	Environment Environment

	// TokenURL overrides the environment's token endpoint.
	TokenURL string

	// BaseURL overrides the environment's API root.
	BaseURL string

	// ClientID and ClientSecret are the PISTE application credentials.
	ClientID     string
	ClientSecret string

	// Timeout bounds each HTTP call when the client builds its own transport.
	// Default: 40 seconds.
	Timeout time.Duration

	// MaxRetries is the number of attempts for 5xx answers and network errors.
	// Default: 4.
	MaxRetries int

	// BackoffBase is the delay before the second attempt, doubled afterwards.
	// Default: 700ms.
	BackoffBase time.Duration

	// RequestInterval is the minimum interval between upstream calls.
	// Default: 250ms. Zero disables spacing.
	RequestInterval time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// HTTPClient is the underlying HTTP client used for requests.
	// If nil, an *http.Client with Timeout is used (wrapped with rate limiting).
	HTTPClient HTTPClient

	// Logger receives request diagnostics. Default: no-op.
	Logger *zap.Logger
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Environment:     EnvironmentProduction,
		Timeout:         DefaultTimeout,
		MaxRetries:      DefaultMaxRetries,
		BackoffBase:     DefaultBackoffBase,
		RequestInterval: DefaultRequestInterval,
		UserAgent:       DefaultUserAgent,
	}
}

func (config ClientConfig) tokenURL() string {
	if config.TokenURL != "" {
		return config.TokenURL
	}
	return config.Environment.TokenURL()
}

func (config ClientConfig) baseURL() string {
	if config.BaseURL != "" {
		return strings.TrimRight(config.BaseURL, "/")
	}
	return config.Environment.BaseURL()
}
