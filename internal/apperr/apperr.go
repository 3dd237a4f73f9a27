// Package apperr defines the error kinds reported by every realtime and REST
// operation. A Kind is also the stable wire `code` clients branch on, so the
// string values must never change.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed operation.
type Kind string

const (
	Unauthenticated Kind = "unauthenticated"
	Forbidden       Kind = "forbidden"
	NotFound        Kind = "notFound"
	Conflict        Kind = "conflict"
	Invalid         Kind = "invalid"
	Expired         Kind = "expired"
	BlockedByPolicy Kind = "blockedByPolicy"
	RateLimited     Kind = "rateLimited"
	Transient       Kind = "transient"
	Unavailable     Kind = "unavailable"
)

// Error carries a Kind, a client-safe message and an optional cause.
// The cause is for logs only and is never serialized.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Error values by Kind, so errors.Is(err, apperr.E(Conflict, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// E builds an *Error without a cause.
func E(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap builds an *Error that keeps err as its cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Forbiddenf(format string, a ...any) *Error { return E(Forbidden, fmt.Sprintf(format, a...)) }
func NotFoundf(format string, a ...any) *Error  { return E(NotFound, fmt.Sprintf(format, a...)) }
func Conflictf(format string, a ...any) *Error  { return E(Conflict, fmt.Sprintf(format, a...)) }
func Invalidf(format string, a ...any) *Error   { return E(Invalid, fmt.Sprintf(format, a...)) }
func Expiredf(format string, a ...any) *Error   { return E(Expired, fmt.Sprintf(format, a...)) }

// Blocked is returned whenever an active block exists between two users.
func Blocked() *Error { return E(BlockedByPolicy, "interaction blocked") }

// TransientErr wraps a persistence or network failure. Clients may retry.
func TransientErr(err error) *Error { return Wrap(Transient, "temporary failure, retry", err) }

// KindOf reports the Kind of err. Errors that are not *Error are treated as
// transient because they originate from storage or the network.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "temporary failure, retry"
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// HTTPStatus maps a Kind to the REST status code.
func HTTPStatus(k Kind) int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden, BlockedByPolicy:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Invalid:
		return http.StatusBadRequest
	case Expired:
		return http.StatusGone
	case RateLimited:
		return http.StatusTooManyRequests
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
