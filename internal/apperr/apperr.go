// Package apperr defines the wire error taxonomy shared by every component
// boundary. Components return *Error instead of raising exceptions; the
// HTTP edge is the only place that knows how a Kind maps to a status code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the stable taxonomy values. It is the ASCII "code" carried
// on the wire, never a type name.
type Kind string

const (
	Validation          Kind = "VALIDATION"
	AuthRequired         Kind = "AUTH_REQUIRED"
	AuthRevoked          Kind = "AUTH_REVOKED"
	NotFound             Kind = "NOT_FOUND"
	Conflict             Kind = "CONFLICT"
	Stale                Kind = "STALE"
	RateLimited          Kind = "RATE_LIMITED"
	InFlight             Kind = "IN_FLIGHT"
	PaymentVerifyFailed  Kind = "PAYMENT_VERIFICATION_FAILED"
	Internal             Kind = "INTERNAL"
)

// Error is the concrete error type every component boundary returns.
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

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an underlying cause, keeping it
// reachable via errors.Unwrap/errors.As for logging call sites.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal when err is not
// (or does not wrap) an *Error. Handlers use this once at the HTTP edge.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// MessageOf returns the human-readable message, falling back to err.Error().
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

var (
	ErrConflict      = New(Conflict, "conflict")
	ErrStale         = New(Stale, "stale")
	ErrNotFound      = New(NotFound, "not found")
	ErrInFlight      = New(InFlight, "operation already in flight")
	ErrNoAvailability = New(Conflict, "no seats available")
)
