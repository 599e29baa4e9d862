package httpmw

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

// Recover turns a handler panic into an unexpected error and hands it to
// the responder, which logs it with the panicking stack and writes a 500
// envelope. If the response was already started only the log entry is
// written. http.ErrAbortHandler is re-raised for net/http to handle.
func Recover(rs *apierr.Responder, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}

				var cause error
				if err, ok := v.(error); ok {
					cause = fmt.Errorf("httpserver panic recovered: %w", err)
				} else {
					cause = fmt.Errorf("httpserver panic recovered: %v", v)
				}
				err := apierr.Unexpected(cause)

				if tw.wroteHeader {
					log.FromContext(r.Context()).Error(r.Context(), err, "httpserver panic recovered after response started")
					return
				}
				rs.Respond(tw, r, err)
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackingWriter) WriteHeader(code int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		t.wroteHeader = true
		f.Flush()
	}
}

func (t *trackingWriter) Unwrap() http.ResponseWriter { return t.ResponseWriter }
