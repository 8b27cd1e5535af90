package legifrance

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned when credentials are missing or rejected by the token endpoint.
	ErrAuth = errors.New("legifrance authentication failed")

	// ErrTransport is returned when a call keeps failing with server or network errors
	// after every retry.
	ErrTransport = errors.New("legifrance transport failure")

	// ErrNotFound is wrapped by APIError for HTTP 404 answers.
	ErrNotFound = errors.New("legifrance resource not found")
)

// TransportError reports a call that exhausted its retries.
type TransportError struct {
	Path       string
	Attempts   int
	StatusCode int // last HTTP status seen, 0 when the last failure was a network error
	Err        error
}

func (transportErr *TransportError) Error() string {
	if transportErr.StatusCode != 0 {
		return fmt.Sprintf("%s: %s failed after %d attempts (HTTP %d)",
			ErrTransport, transportErr.Path, transportErr.Attempts, transportErr.StatusCode)
	}
	return fmt.Sprintf("%s: %s failed after %d attempts: %v",
		ErrTransport, transportErr.Path, transportErr.Attempts, transportErr.Err)
}

// Unwrap exposes both the sentinel and the last underlying error.
func (transportErr *TransportError) Unwrap() []error {
	if transportErr.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, transportErr.Err}
}

// APIError is a non-200 answer from a data endpoint. The provider's error body is
// kept verbatim and never parsed.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (apiErr *APIError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", apiErr.Operation, apiErr.StatusCode, truncate(apiErr.Body, 200))
}

// Unwrap maps 404 answers onto ErrNotFound.
func (apiErr *APIError) Unwrap() error {
	if apiErr.StatusCode == 404 {
		return ErrNotFound
	}
	return nil
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
