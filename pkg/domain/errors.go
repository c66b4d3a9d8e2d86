package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrKind partitions failures into the classes callers act on.
type ErrKind int

const (
	KindInternal ErrKind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalidInput
	KindRateLimited
	KindUnavailable
)

// Error carries a kind, a caller-safe message, and an optional cause.
// Internal detail stays in Err and is logged, never returned to clients.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error
	// RetryAfter is set on rate-limit errors so transports can emit
	// a Retry-After header.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a typed error.
func E(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a cause to a typed error.
func Wrap(kind ErrKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// RateLimited constructs a rate-limit error carrying the retry hint.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Msg: "rate limit exceeded", RetryAfter: retryAfter}
}

// RetryAfterOf extracts the retry hint, or zero when absent.
func RetryAfterOf(err error) time.Duration {
	var de *Error
	if errors.As(err, &de) {
		return de.RetryAfter
	}
	return 0
}

// KindOf extracts the kind; unknown errors classify as internal.
func KindOf(err error) ErrKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrKind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns the caller-safe message for an error.
func UserMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Msg
	}
	return "internal error"
}

// HTTPStatus maps an error kind to its response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Shared sentinel errors for the common cases.
var (
	ErrUnauthenticated = E(KindUnauthenticated, "unauthorized")
	ErrForbidden       = E(KindForbidden, "forbidden")
	ErrNotEntitled     = E(KindForbidden, "community access requires an active membership")
	ErrChannelNotFound = E(KindNotFound, "channel not found")
	ErrMessageNotFound = E(KindNotFound, "message not found")
	ErrPostNotFound    = E(KindNotFound, "post not found")
	ErrMemberNotFound  = E(KindNotFound, "member not found")
	ErrEmptyContent    = E(KindInvalidInput, "message needs text or an image")
	ErrContentTooLong  = E(KindInvalidInput, "message exceeds the length limit")
	ErrCrossChannel    = E(KindInvalidInput, "reply targets a different channel")
	ErrReadonly        = E(KindForbidden, "channel is read-only")
)
