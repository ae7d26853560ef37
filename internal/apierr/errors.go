// Package apierr defines the error taxonomy crossed at the internal/service
// boundary. Internal packages are free to return plain wrapped errors among
// themselves; anything returned from internal/service must be mapped to one
// of these kinds first.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on outcome
// (retry, surface to an operator, drop silently) without string matching.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindValidation           Kind = "validation"
	KindInsufficientData     Kind = "insufficient_data"
	KindConflict             Kind = "conflict"
	KindStale                Kind = "stale"
	KindExternalFailure      Kind = "external_failure"
	KindCircuitBreakerTripped Kind = "circuit_breaker_tripped"
	KindAuthExpired          Kind = "auth_expired"
	KindInternal             Kind = "internal"
)

// Error is the boundary error type. It wraps an underlying cause while
// exposing a stable Kind that callers can switch on.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a boundary error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a boundary error around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// NotFound, Validation, etc. are constructors for the common cases, named
// after the Kind they build so call sites read like apierr.NotFound(...).
func NotFound(message string) *Error { return New(KindNotFound, message) }

func Validation(message string) *Error { return New(KindValidation, message) }

func InsufficientData(message string) *Error { return New(KindInsufficientData, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func Stale(message string) *Error { return New(KindStale, message) }

func ExternalFailure(message string, cause error) *Error {
	return Wrap(KindExternalFailure, message, cause)
}

func CircuitBreakerTripped(message string) *Error {
	return New(KindCircuitBreakerTripped, message)
}

func AuthExpired(message string) *Error { return New(KindAuthExpired, message) }

func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}
