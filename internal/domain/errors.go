package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers. Handlers and clients dispatch on
// Kind, never on the message text.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidArgument    Kind = "invalid_argument"
	KindResourceExhausted  Kind = "resource_exhausted"
	KindUpstreamFailed     Kind = "upstream_failed"
	KindUpstreamTimeout    Kind = "upstream_timeout"
	KindStorageWriteFailed Kind = "storage_write_failed"
	KindInternal           Kind = "internal"
)

// Error pairs a Kind with a human-readable message and an optional cause.
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

// Is matches domain errors by Kind so errors.Is works with kind sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// E constructs a domain error without a cause.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a domain error around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err. Errors that are not domain errors
// report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf extracts the human-readable message from err, falling back to
// a generic message for unclassified errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
