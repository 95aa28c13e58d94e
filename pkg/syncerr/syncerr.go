// Package syncerr classifies provider-call failures so the sync engine can
// decide between retrying, failing the job, and flipping a connection into
// the error state.
package syncerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

type Kind string

const (
	KindAuth      Kind = "auth"       // 401/403: non-retryable, user must reconnect
	KindRateLimit Kind = "rate_limit" // 429: retryable with backoff
	KindNetwork   Kind = "network"    // reset/timeout: retryable
	KindServer    Kind = "server"     // 5xx: retryable
	KindClient    Kind = "client"     // other 4xx: non-retryable
	KindUnknown   Kind = "unknown"    // default: retryable, bounded
)

// ErrSyncTokenExpired signals that a provider rejected a delta sync token
// (HTTP 410 or equivalent). The strategy selector falls back to a full
// windowed fetch; this never reaches the job as a failure.
var ErrSyncTokenExpired = errors.New("sync token expired")

// Error wraps a provider failure with its classification.
type Error struct {
	Kind       Kind
	StatusCode int
	RetryAfter time.Duration // backoff hint from a Retry-After header, 0 if absent
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the orchestrator's retry policy applies.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindAuth, KindClient:
		return false
	default:
		return true
	}
}

// Classify maps an arbitrary provider error into the taxonomy. Already
// classified errors and the expired-token sentinel pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, ErrSyncTokenExpired) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusGone {
			return ErrSyncTokenExpired
		}
		return FromStatus(gerr.Code, retryAfterFromHeader(gerr.Header), err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return &Error{Kind: KindNetwork, Err: err}
	}

	return &Error{Kind: KindUnknown, Err: err}
}

// FromStatus builds a classified error from a bare HTTP status code.
func FromStatus(code int, retryAfter time.Duration, err error) error {
	e := &Error{StatusCode: code, RetryAfter: retryAfter, Err: err}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e.Kind = KindAuth
	case code == http.StatusTooManyRequests:
		e.Kind = KindRateLimit
	case code >= 500:
		e.Kind = KindServer
	case code >= 400:
		e.Kind = KindClient
	default:
		e.Kind = KindUnknown
	}
	return e
}

// IsRetryable applies the taxonomy default: unclassified errors are
// retryable but bounded.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}

// RetryAfter extracts a backoff hint, 0 when none is present.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func retryAfterFromHeader(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
