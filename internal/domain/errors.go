package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken means no access token is held; the account has to be connected first.
	ErrNoToken = errors.New("no access token: connect the account first")
	// ErrNoRefreshToken means a refresh was needed but no refresh token is held.
	ErrNoRefreshToken = errors.New("no refresh token held")
	// ErrAuthStillInvalid is returned when the provider rejects the token again right after a refresh.
	ErrAuthStillInvalid = errors.New("authorization still rejected after token refresh")
)

// ExchangeError carries the provider payload of a rejected authorization-code exchange.
type ExchangeError struct {
	Status  int
	Payload string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("authorization code exchange rejected (status %d): %s", e.Status, e.Payload)
}

// RefreshError carries the provider payload of a rejected refresh grant.
// The held refresh token may be dead after this.
type RefreshError struct {
	Status  int
	Payload string
	Err     error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("token refresh rejected (status %d): %s", e.Status, e.Payload)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// GatewayError is any non-success provider response that is not an authorization failure.
type GatewayError struct {
	Path   string
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("marketplace request %s failed with status %d: %s", e.Path, e.Status, truncate(e.Body, 300))
}

// ParseError is returned when a provider body is not valid JSON.
type ParseError struct {
	Path string
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("marketplace response for %s is not valid JSON: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsAuthError reports whether err means the user has to reconnect the account.
func IsAuthError(err error) bool {
	var refreshErr *RefreshError
	var exchangeErr *ExchangeError
	return errors.Is(err, ErrNoToken) ||
		errors.Is(err, ErrNoRefreshToken) ||
		errors.Is(err, ErrAuthStillInvalid) ||
		errors.As(err, &refreshErr) ||
		errors.As(err, &exchangeErr)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
