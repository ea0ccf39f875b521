// Package apperror defines the caller-visible error taxonomy of the engine.
//
// Every rejection a caller can act on is one of three kinds: the entity is
// absent (NotFound), the request violates a precondition or invariant
// (Validation), or the caller lacks the required role or ownership
// (Forbidden). Anything else is an internal failure.
package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an application error
type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindValidation Kind = "VALIDATION"
	KindForbidden  Kind = "FORBIDDEN"
	KindInternal   Kind = "INTERNAL"
)

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// Error is a structured error carrying a kind and a human-readable reason
type Error struct {
	Kind    Kind
	Message string
	// Fields maps form field names to validation messages, if any
	Fields map[string]string
	cause  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.cause
}

// NotFound creates an error for an absent entity
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates an error for a violated precondition or invariant
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationFields creates a validation error with per-field messages
func ValidationFields(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// Forbidden creates an error for a caller lacking role or ownership
func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an application error
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a NotFound error
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsValidation reports whether err is a Validation error
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsForbidden reports whether err is a Forbidden error
func IsForbidden(err error) bool {
	return err != nil && KindOf(err) == KindForbidden
}
