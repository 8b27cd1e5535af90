package legifrance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenState is the lifecycle state of the client's access token.
type TokenState int

const (
	// TokenUnauthenticated means no exchange has happened yet.
	TokenUnauthenticated TokenState = iota

	// TokenAuthenticated means a token is cached and still inside its validity window.
	TokenAuthenticated

	// TokenExpiring means the cached token reached its refresh point; the next
	// data call re-authenticates.
	TokenExpiring

	// TokenFailed is terminal: credentials were missing or rejected.
	TokenFailed
)

func (state TokenState) String() string {
	switch state {
	case TokenUnauthenticated:
		return "unauthenticated"
	case TokenAuthenticated:
		return "authenticated"
	case TokenExpiring:
		return "expiring"
	case TokenFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// session is the cached token. Guarded by Client.mu.
type session struct {
	accessToken string
	issuedAt    time.Time
	expiresAt   time.Time
	failure     error
}

// State returns the current token state.
func (legifranceClient *Client) State() TokenState {
	legifranceClient.mu.Lock()
	defer legifranceClient.mu.Unlock()
	return legifranceClient.stateLocked()
}

func (legifranceClient *Client) stateLocked() TokenState {
	switch {
	case legifranceClient.session.failure != nil:
		return TokenFailed
	case legifranceClient.session.accessToken == "":
		return TokenUnauthenticated
	case !legifranceClient.now().Before(legifranceClient.session.expiresAt):
		return TokenExpiring
	default:
		return TokenAuthenticated
	}
}

// ExpiresAt returns the instant at which the cached token will be refreshed.
func (legifranceClient *Client) ExpiresAt() time.Time {
	legifranceClient.mu.Lock()
	defer legifranceClient.mu.Unlock()
	return legifranceClient.session.expiresAt
}

// Authenticate performs the client-credentials exchange and caches the token.
// Missing or rejected credentials move the client to the failed state, after
// which every call returns the original failure. An unreachable or failing
// token endpoint returns a *TransportError and leaves the state unchanged, so
// a later call tries again.
func (legifranceClient *Client) Authenticate(ctx context.Context) error {
	legifranceClient.mu.Lock()
	defer legifranceClient.mu.Unlock()
	return legifranceClient.authenticateLocked(ctx)
}

func (legifranceClient *Client) authenticateLocked(ctx context.Context) error {
	if legifranceClient.session.failure != nil {
		return legifranceClient.session.failure
	}

	config := legifranceClient.config
	if config.ClientID == "" || config.ClientSecret == "" {
		legifranceClient.session.failure = fmt.Errorf("%w: client id and secret are required", ErrAuth)
		return legifranceClient.session.failure
	}

	credentials := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     config.tokenURL(),
		Scopes:       []string{"openid"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, legifranceClient.tokenHTTPClient)
	issuedAt := legifranceClient.now()
	token, err := credentials.Token(tokenCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !credentialsRejected(err) {
			legifranceClient.logger.Warn("legifrance token endpoint unavailable", zap.Error(err))
			return &TransportError{Path: "token", Attempts: 1, StatusCode: retrieveStatus(err), Err: err}
		}
		legifranceClient.session = session{failure: fmt.Errorf("%w: token exchange: %w", ErrAuth, err)}
		legifranceClient.logger.Error("legifrance token exchange failed", zap.Error(err))
		return legifranceClient.session.failure
	}
	if token.AccessToken == "" {
		legifranceClient.session = session{failure: fmt.Errorf("%w: token endpoint returned no access token", ErrAuth)}
		return legifranceClient.session.failure
	}

	lifetime := tokenLifetime(token)
	legifranceClient.session = session{
		accessToken: token.AccessToken,
		issuedAt:    issuedAt,
		expiresAt:   issuedAt.Add(lifetime - expiryMargin),
	}
	legifranceClient.logger.Debug("legifrance token issued",
		zap.Duration("lifetime", lifetime),
		zap.Time("refresh_at", legifranceClient.session.expiresAt))
	return nil
}

// credentialsRejected reports whether the token endpoint refused the client
// credentials, as opposed to being unreachable or failing on its side.
func credentialsRejected(err error) bool {
	switch retrieveStatus(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

func retrieveStatus(err error) int {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return retrieveErr.Response.StatusCode
	}
	return 0
}

// accessToken returns a usable token, re-authenticating when the cached one has
// reached its refresh point.
func (legifranceClient *Client) accessToken(ctx context.Context) (string, error) {
	legifranceClient.mu.Lock()
	defer legifranceClient.mu.Unlock()

	switch legifranceClient.stateLocked() {
	case TokenAuthenticated:
		return legifranceClient.session.accessToken, nil
	case TokenExpiring:
		legifranceClient.logger.Debug("legifrance token expiring, refreshing")
	}
	if err := legifranceClient.authenticateLocked(ctx); err != nil {
		return "", err
	}
	return legifranceClient.session.accessToken, nil
}

// invalidate drops the cached token after the API rejected it.
func (legifranceClient *Client) invalidate(rejected string) {
	legifranceClient.mu.Lock()
	defer legifranceClient.mu.Unlock()
	if legifranceClient.session.accessToken == rejected && legifranceClient.session.failure == nil {
		legifranceClient.session = session{}
	}
}

// tokenLifetime reads expires_in from the raw token response.
func tokenLifetime(token *oauth2.Token) time.Duration {
	var seconds float64
	switch raw := token.Extra("expires_in").(type) {
	case float64:
		seconds = raw
	case json.Number:
		seconds, _ = raw.Float64()
	case string:
		seconds, _ = strconv.ParseFloat(raw, 64)
	case int64:
		seconds = float64(raw)
	}
	if seconds <= 0 {
		return defaultTokenLifetime
	}
	return time.Duration(seconds * float64(time.Second))
}
