package apierr

import (
	"encoding/json"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/reqctx"
)

// Responder is the single place error responses are logged and written.
type Responder struct {
	// OnError is called once per written error response (metrics).
	OnError func(kind Kind, status int)
}

// Respond normalizes err, logs it at the severity its kind calls for,
// records it on the request context and writes the envelope.
func (rs *Responder) Respond(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	rc, _ := reqctx.From(ctx)
	reqID := reqctx.ID(ctx)

	out := Normalize(err, reqID)
	L := log.FromContext(ctx)

	switch out.Kind {
	case KindDomain:
		L.Error(ctx, err, "application error",
			"request_id", reqID,
			"status_code", out.Status,
			"details", out.Envelope.Error.Details,
		)
	case KindTransport:
		L.Warn(ctx, "http error",
			"request_id", reqID,
			"status_code", out.Status,
			"detail", out.Envelope.Error.Message,
		)
	case KindValidation:
		L.Warn(ctx, "validation error",
			"request_id", reqID,
			"errors", out.Envelope.Error.Details,
		)
	default:
		if err == nil {
			err = Unexpectedf("nil error passed to responder")
		}
		L.Error(ctx, err, "unexpected error", "request_id", reqID)
	}

	rc.Fail(err)
	if rs != nil && rs.OnError != nil {
		rs.OnError(out.Kind, out.Status)
	}
	WriteJSON(w, out.Status, out.Envelope)
}

// Handler adapts an error-returning handler to http.HandlerFunc.
func (rs *Responder) Handler(h func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			rs.Respond(w, r, err)
		}
	}
}

// WriteJSON writes v with the given status. Encoding errors are dropped
// because the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
