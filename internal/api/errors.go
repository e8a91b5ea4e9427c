package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors
var (
	// ErrAuthExpired is returned on HTTP 401. The client never clears the
	// session itself; callers own that reaction.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrNotFound is returned on HTTP 404.
	ErrNotFound = errors.New("not found")
)

// APIError is an application-level failure: the backend answered with a
// well-formed envelope carrying success=false, or a JSON error status.
// These are never retried.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: %s (HTTP %d)", e.Message, e.StatusCode)
}

// MalformedResponseError is returned when the backend answers with something
// that is not JSON, typically an HTML error page from a proxy or a crashed
// handler. Diagnosed by sniffing for a '<' prefix before any JSON decode so
// callers get a distinguished message instead of a parse failure.
type MalformedResponseError struct {
	StatusCode int
	Snippet    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("unexpected server response (HTTP %d)", e.StatusCode)
}

// Retryable reports whether err is a transport-level failure (timeout,
// unreachable, reset) that is safe to retry. Application-level failures,
// auth expiry and not-found are never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	var malformed *MalformedResponseError
	switch {
	case errors.Is(err, ErrAuthExpired),
		errors.Is(err, ErrNotFound),
		errors.As(err, &apiErr),
		errors.As(err, &malformed):
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Anything else that reached us without an HTTP status is transport-ish.
	return true
}
