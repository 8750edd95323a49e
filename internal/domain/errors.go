package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrUnauthorized       = errors.New("upstream rejected credentials")
	ErrCredentialsMissing = errors.New("credentials are not configured")
	ErrRateLimited        = errors.New("upstream rate limit reached")
	ErrTargetNotFound     = errors.New("target not found")
	ErrInvalidTarget      = errors.New("invalid target name")
	ErrInvalidMode        = errors.New("invalid publish mode: must be retweet or republish")
	ErrAlreadyRunning     = errors.New("monitoring is already running")
	ErrNotRunning         = errors.New("monitoring is not running")
	ErrCycleInProgress    = errors.New("a cycle of this kind is already in progress")
)

// RateLimitError carries the upstream's throttling signal. ResetAt is zero
// when the upstream did not say when the limit lifts.
type RateLimitError struct {
	ResetAt time.Time
	Err     error
}

func (e *RateLimitError) Error() string {
	msg := "rate limited"
	if !e.ResetAt.IsZero() {
		msg += " until " + e.ResetAt.UTC().Format(time.RFC3339)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRateLimited) match any RateLimitError.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// AsRateLimit extracts a RateLimitError from an error chain.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsAuthError reports whether err means retrying without operator action is pointless.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrCredentialsMissing)
}

// HTTPError is a non-2xx upstream response that is neither an auth nor a
// rate-limit failure.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected upstream status: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected upstream status: %d: %s", e.StatusCode, e.Body)
}

// APIError is an explicit error reported inside a 2xx response body.
type APIError struct {
	Message string
}

func (e *APIError) Error() string { return "upstream api error: " + e.Message }
