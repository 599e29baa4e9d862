package httpmw

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/keithlinneman/linnemanlabs-api/internal/reqctx"
)

// RequestID is the correlation stage and must run first:
//   - assigns a fresh random (v4) UUID to every request; an inbound
//     X-Request-ID is never reused, only kept as the upstream id
//   - resolves the client address (see extractRealClientAddr)
//   - stores a reqctx.RequestContext in the request context
//   - echoes the id in X-Request-ID on every response
func RequestID(trustedHops int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := reqctx.New(uuid.NewString(), r, extractRealClientAddr(r, trustedHops))

			w.Header().Set(reqctx.Header, rc.ID)

			next.ServeHTTP(w, r.WithContext(reqctx.With(r.Context(), rc)))
		})
	}
}
