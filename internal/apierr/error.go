// Package apierr defines the error variants handlers return and maps every
// error to the uniform JSON envelope sent to clients.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// Kind selects how an error is logged and rendered.
type Kind uint8

const (
	// KindUnexpected is anything not built by this package: bugs, outages,
	// recovered panics. Its message and cause are never sent to clients.
	KindUnexpected Kind = iota
	// KindDomain carries an application-chosen status, message and details.
	KindDomain
	// KindTransport is a protocol-level condition (404, 405, bad host).
	KindTransport
	// KindValidation carries field-level violations of a request schema.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindDomain:
		return "domain"
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	default:
		return "unexpected"
	}
}

// Violation is one field-level validation failure.
type Violation struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

type Error struct {
	Kind       Kind
	Status     int
	Message    string
	Details    map[string]any
	Violations []Violation

	cause error
	pcs   []uintptr
}

func (e *Error) Error() string {
	switch {
	case e.cause != nil && e.Message != "":
		return e.Message + ": " + e.cause.Error()
	case e.cause != nil:
		return e.cause.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error       { return e.cause }
func (e *Error) StackPCs() []uintptr { return e.pcs }

func captureStack() []uintptr {
	const maxDepth = 64
	pcs := make([]uintptr, maxDepth)
	// skip runtime.Callers, captureStack and the constructor
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

// New builds a domain error. A nil details map renders as {}.
func New(status int, message string, details map[string]any) *Error {
	if details == nil {
		details = map[string]any{}
	}
	return &Error{Kind: KindDomain, Status: status, Message: message, Details: details}
}

// Domain errors with the stock status codes. An empty message selects the
// default text for the status.
func NotFound(message string, details map[string]any) *Error {
	return New(http.StatusNotFound, orDefault(message, "Resource not found"), details)
}

func BadRequest(message string, details map[string]any) *Error {
	return New(http.StatusBadRequest, orDefault(message, "Bad request"), details)
}

func Unauthorized(message string, details map[string]any) *Error {
	return New(http.StatusUnauthorized, orDefault(message, "Unauthorized"), details)
}

func Forbidden(message string, details map[string]any) *Error {
	return New(http.StatusForbidden, orDefault(message, "Forbidden"), details)
}

func Conflict(message string, details map[string]any) *Error {
	return New(http.StatusConflict, orDefault(message, "Conflict"), details)
}

func Unprocessable(message string, details map[string]any) *Error {
	return New(http.StatusUnprocessableEntity, orDefault(message, "Validation error"), details)
}

func Internal(message string, details map[string]any) *Error {
	return New(http.StatusInternalServerError, orDefault(message, "Internal server error"), details)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// HTTP builds a transport error. An empty message uses http.StatusText.
func HTTP(status int, message string) *Error {
	return &Error{Kind: KindTransport, Status: status, Message: orDefault(message, http.StatusText(status))}
}

// Validation builds a 422 error from one or more violations.
func Validation(violations ...Violation) *Error {
	return &Error{
		Kind:       KindValidation,
		Status:     http.StatusUnprocessableEntity,
		Message:    "Validation error",
		Violations: violations,
	}
}

// Unexpected wraps cause with the caller's stack.
func Unexpected(cause error) *Error {
	if cause == nil {
		cause = errors.New("unexpected error")
	}
	return &Error{Kind: KindUnexpected, Status: http.StatusInternalServerError, cause: cause, pcs: captureStack()}
}

// Unexpectedf is Unexpected(fmt.Errorf(format, args...)).
func Unexpectedf(format string, args ...any) *Error {
	return &Error{
		Kind:   KindUnexpected,
		Status: http.StatusInternalServerError,
		cause:  fmt.Errorf(format, args...),
		pcs:    captureStack(),
	}
}

// KindOf reports the kind of the first *Error in err's chain, or
// KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
