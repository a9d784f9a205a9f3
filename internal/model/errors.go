package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized is the uniform authentication failure surfaced to
	// callers. Expired/revoked/malformed are kept distinct for logging only.
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenRevoked   = errors.New("token has been revoked")
	ErrTokenMalformed = errors.New("token is malformed")

	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrStoreUnavailable      = errors.New("security store unavailable")
	ErrMFAMethodNotSupported = errors.New("mfa method not supported")
	ErrMFASetupExpired       = errors.New("mfa setup expired or not found")
	ErrMFARejected           = errors.New("mfa code rejected")
)

// RateLimitedError reports which action tripped and how long the caller
// should wait before retrying.
type RateLimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for action %q, retry after %s", e.Action, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
