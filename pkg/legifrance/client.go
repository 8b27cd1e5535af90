// Package legifrance is a client for the Légifrance API published on the PISTE
// gateway. It owns the OAuth2 client-credentials session, spaces and retries
// calls, and exposes the consult and search operations used to resolve articles.
package legifrance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Response is a fully read upstream answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is an authenticated Légifrance API client. One Client is built per
// sync run; it is safe for concurrent use but callers resolve sequentially.
type Client struct {
	config          ClientConfig
	httpClient      HTTPClient
	tokenHTTPClient *http.Client
	logger          *zap.Logger

	mu      sync.Mutex
	session session

	now   func() time.Time
	sleep func(ctx context.Context, duration time.Duration) error
}

// NewClient creates a new Client with the given configuration.
// If config.HTTPClient is nil, an *http.Client bounded by config.Timeout is used.
// Every call goes through a rate limiter honouring config.RequestInterval.
func NewClient(config ClientConfig) *Client {
	if config.Environment == "" {
		config.Environment = EnvironmentProduction
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.BackoffBase < 0 {
		config.BackoffBase = 0
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	underlyingClient := config.HTTPClient
	if underlyingClient == nil {
		underlyingClient = &http.Client{Timeout: config.Timeout}
	}
	rateLimitedClient := NewRateLimitedHTTPClient(underlyingClient, config.RequestInterval)

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:          config,
		httpClient:      rateLimitedClient,
		tokenHTTPClient: asStdClient(rateLimitedClient, config.Timeout),
		logger:          logger.Named("legifrance"),
		now:             time.Now,
		sleep:           sleepContext,
	}
}

// Do sends body as a JSON POST to path (relative to the API root) with the
// bearer token and provider headers, handling re-authentication, rate limiting
// and server-error retries. Non-2xx answers that survive the retry policy are
// returned as responses, not errors.
func (legifranceClient *Client) Do(ctx context.Context, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body for %s: %w", path, err)
	}

	var (
		reauthenticated bool
		rateLimited     bool
		failedAttempts  int
	)
	for {
		token, err := legifranceClient.accessToken(ctx)
		if err != nil {
			var tokenErr *TransportError
			if !errors.As(err, &tokenErr) {
				return nil, err
			}
			failedAttempts++
			if failedAttempts >= legifranceClient.config.MaxRetries {
				return nil, &TransportError{Path: path, Attempts: failedAttempts, StatusCode: tokenErr.StatusCode, Err: err}
			}
			if err := legifranceClient.sleep(ctx, legifranceClient.backoff(failedAttempts)); err != nil {
				return nil, err
			}
			continue
		}

		response, err := legifranceClient.send(ctx, path, payload, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failedAttempts++
			legifranceClient.logger.Warn("legifrance request failed",
				zap.String("path", path), zap.Int("attempt", failedAttempts), zap.Error(err))
			if failedAttempts >= legifranceClient.config.MaxRetries {
				return nil, &TransportError{Path: path, Attempts: failedAttempts, Err: err}
			}
			if err := legifranceClient.sleep(ctx, legifranceClient.backoff(failedAttempts)); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case (response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden) && !reauthenticated:
			reauthenticated = true
			legifranceClient.logger.Info("legifrance rejected token, re-authenticating",
				zap.String("path", path), zap.Int("status", response.StatusCode))
			legifranceClient.invalidate(token)
			continue

		case response.StatusCode == http.StatusTooManyRequests && !rateLimited:
			rateLimited = true
			pause := retryAfter(response.Header.Get("Retry-After"))
			legifranceClient.logger.Info("legifrance rate limited",
				zap.String("path", path), zap.Duration("pause", pause))
			if err := legifranceClient.sleep(ctx, pause); err != nil {
				return nil, err
			}
			continue

		case response.StatusCode >= 500:
			failedAttempts++
			legifranceClient.logger.Warn("legifrance server error",
				zap.String("path", path),
				zap.Int("status", response.StatusCode),
				zap.Int("attempt", failedAttempts),
				zap.String("body", truncate(string(response.Body), 300)))
			if failedAttempts >= legifranceClient.config.MaxRetries {
				return nil, &TransportError{Path: path, Attempts: failedAttempts, StatusCode: response.StatusCode}
			}
			if err := legifranceClient.sleep(ctx, legifranceClient.backoff(failedAttempts)); err != nil {
				return nil, err
			}
			continue
		}

		if response.StatusCode != http.StatusOK {
			legifranceClient.logger.Debug("legifrance non-200 answer",
				zap.String("path", path),
				zap.Int("status", response.StatusCode),
				zap.String("body", truncate(string(response.Body), 300)))
		}
		return response, nil
	}
}

func (legifranceClient *Client) send(ctx context.Context, path string, payload []byte, token string) (*Response, error) {
	endpoint := legifranceClient.config.baseURL() + "/" + strings.TrimLeft(path, "/")
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Accept-Language", "fr")
	request.Header.Set("User-Agent", legifranceClient.config.UserAgent)
	if legifranceClient.config.ClientID != "" {
		request.Header.Set("X-Client-Id", legifranceClient.config.ClientID)
	}

	httpResponse, err := legifranceClient.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{
		StatusCode: httpResponse.StatusCode,
		Header:     httpResponse.Header,
		Body:       responseBody,
	}, nil
}

// backoff returns the delay after the given number of failed attempts.
func (legifranceClient *Client) backoff(failedAttempts int) time.Duration {
	delay := legifranceClient.config.BackoffBase
	for i := 1; i < failedAttempts; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// retryAfter parses a Retry-After header (seconds or HTTP date) and applies
// the minimum pause.
func retryAfter(header string) time.Duration {
	pause := minRateLimitPause
	header = strings.TrimSpace(header)
	if header == "" {
		return pause
	}
	if seconds, err := strconv.ParseFloat(header, 64); err == nil {
		if requested := time.Duration(seconds * float64(time.Second)); requested > pause {
			return requested
		}
		return pause
	}
	if when, err := http.ParseTime(header); err == nil {
		if requested := time.Until(when); requested > pause {
			return requested
		}
	}
	return pause
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decodeTree parses a JSON answer into a generic tree, keeping numbers as json.Number.
func decodeTree(body []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var tree map[string]any
	if err := decoder.Decode(&tree); err != nil {
		return nil, err
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}
