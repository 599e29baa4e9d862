package httpmw

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
)

// MaxBody caps request bodies at limit bytes. A declared Content-Length over
// the limit is refused with a 413 envelope before dispatch; bodies without a
// length are wrapped so reads past the limit fail with *http.MaxBytesError.
// A limit <= 0 disables the check.
func MaxBody(limit int64, rs *apierr.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				rs.Respond(w, r, apierr.HTTP(http.StatusRequestEntityTooLarge, "Request body too large"))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
