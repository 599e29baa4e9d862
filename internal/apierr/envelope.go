package apierr

import (
	"errors"
	"net/http"
)

// Envelope is the body of every error response.
type Envelope struct {
	Success bool `json:"success"`
	Error   Body `json:"error"`
}

type Body struct {
	Message string `json:"message"`
	// Details is a map for domain errors, the violation list for
	// validation errors and null otherwise.
	Details   any    `json:"details"`
	RequestID string `json:"request_id"`
}

// Outcome is the result of normalizing an error.
type Outcome struct {
	Kind     Kind
	Status   int
	Envelope Envelope
}

const (
	msgValidation = "Validation error"
	msgInternal   = "Internal server error"
)

// Normalize maps err to the response a client sees. It has no side effects.
// An empty requestID is replaced with "unknown".
func Normalize(err error, requestID string) Outcome {
	if requestID == "" {
		requestID = "unknown"
	}
	out := Outcome{
		Kind:   KindUnexpected,
		Status: http.StatusInternalServerError,
		Envelope: Envelope{
			Success: false,
			Error:   Body{Message: msgInternal, RequestID: requestID},
		},
	}

	var e *Error
	if !errors.As(err, &e) {
		return out
	}

	switch e.Kind {
	case KindDomain:
		details := e.Details
		if details == nil {
			details = map[string]any{}
		}
		out.Kind = KindDomain
		out.Status = validStatus(e.Status)
		out.Envelope.Error.Message = e.Message
		out.Envelope.Error.Details = details
	case KindTransport:
		out.Kind = KindTransport
		out.Status = validStatus(e.Status)
		out.Envelope.Error.Message = orDefault(e.Message, http.StatusText(out.Status))
	case KindValidation:
		violations := e.Violations
		if violations == nil {
			violations = []Violation{}
		}
		out.Kind = KindValidation
		out.Status = http.StatusUnprocessableEntity
		out.Envelope.Error.Message = msgValidation
		out.Envelope.Error.Details = violations
	}
	return out
}

// validStatus keeps out-of-range codes from reaching WriteHeader.
func validStatus(code int) int {
	if code < 400 || code > 599 {
		return http.StatusInternalServerError
	}
	return code
}
