package httpmw

import (
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
)

// HostGuard rejects requests whose Host header is not in allowed with a 400
// envelope before they reach CORS handling or the router. Entries match
// case-insensitively with the port ignored; "*.example.com" matches any
// subdomain of example.com but not example.com itself. An empty list or
// one containing "*" disables the check.
func HostGuard(allowed []string, rs *apierr.Responder) func(http.Handler) http.Handler {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(next http.Handler) http.Handler { return next }
	}

	patterns := make([]string, 0, len(allowed))
	for _, a := range allowed {
		patterns = append(patterns, strings.ToLower(strings.TrimSpace(a)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hostAllowed(hostOnly(r.Host), patterns) {
				rs.Respond(w, r, apierr.HTTP(http.StatusBadRequest, "Invalid host header"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hostOnly(hostport string) string {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}

func hostAllowed(host string, patterns []string) bool {
	if host == "" {
		return false
	}
	for _, p := range patterns {
		if suffix, ok := strings.CutPrefix(p, "*"); ok && strings.HasPrefix(suffix, ".") {
			if strings.HasSuffix(host, suffix) {
				return true
			}
			continue
		}
		if host == p {
			return true
		}
	}
	return false
}
