package httpmw

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/reqctx"
)

// CORSOptions is the cross-origin policy. "*" in any list allows all.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	// MaxAge is sent on preflight responses, in seconds. Defaults to 600.
	MaxAge int
}

var allMethods = []string{"DELETE", "GET", "HEAD", "OPTIONS", "PATCH", "POST", "PUT"}

// headers browsers may always send
var safelistedHeaders = []string{"accept", "accept-language", "content-language", "content-type"}

type corsPolicy struct {
	allOrigins  bool
	allHeaders  bool
	origins     []string
	methods     []string
	headers     []string
	credentials bool
	maxAge      string
}

func newCORSPolicy(opts CORSOptions) corsPolicy {
	p := corsPolicy{
		allOrigins:  slices.Contains(opts.AllowedOrigins, "*"),
		allHeaders:  slices.Contains(opts.AllowedHeaders, "*"),
		origins:     opts.AllowedOrigins,
		credentials: opts.AllowCredentials,
		maxAge:      strconv.Itoa(opts.MaxAge),
	}
	if opts.MaxAge <= 0 {
		p.maxAge = "600"
	}

	if slices.Contains(opts.AllowedMethods, "*") {
		p.methods = allMethods
	} else {
		for _, m := range opts.AllowedMethods {
			p.methods = append(p.methods, strings.ToUpper(strings.TrimSpace(m)))
		}
	}

	p.headers = append(p.headers, safelistedHeaders...)
	for _, h := range opts.AllowedHeaders {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "*" && !slices.Contains(p.headers, h) {
			p.headers = append(p.headers, h)
		}
	}
	slices.Sort(p.headers)
	return p
}

func (p corsPolicy) originAllowed(origin string) bool {
	return p.allOrigins || slices.Contains(p.origins, origin)
}

// CORS applies the cross-origin policy. Preflight requests (OPTIONS with
// Origin and Access-Control-Request-Method) are answered here and never
// reach the router: 200 when the origin, method and headers are allowed,
// otherwise a 400 envelope. Other requests with an allowed Origin get the
// allow-origin, credentials and expose headers and continue.
func CORS(opts CORSOptions, rs *apierr.Responder) func(http.Handler) http.Handler {
	p := newCORSPolicy(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, rs)
				return
			}

			if p.originAllowed(origin) {
				p.setOrigin(w.Header(), origin)
				w.Header().Set("Access-Control-Expose-Headers", reqctx.Header)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p corsPolicy) setOrigin(h http.Header, origin string) {
	if p.allOrigins && !p.credentials {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

func (p corsPolicy) preflight(w http.ResponseWriter, r *http.Request, rs *apierr.Responder) {
	origin := r.Header.Get("Origin")
	method := strings.ToUpper(r.Header.Get("Access-Control-Request-Method"))
	requested := r.Header.Get("Access-Control-Request-Headers")

	var failures []string
	if !p.originAllowed(origin) {
		failures = append(failures, "origin")
	}
	if !slices.Contains(p.methods, method) {
		failures = append(failures, "method")
	}
	if !p.allHeaders {
		for _, h := range strings.Split(requested, ",") {
			h = strings.ToLower(strings.TrimSpace(h))
			if h != "" && !slices.Contains(p.headers, h) {
				failures = append(failures, "headers")
				break
			}
		}
	}
	if len(failures) > 0 {
		rs.Respond(w, r, apierr.HTTP(http.StatusBadRequest, "Disallowed CORS "+strings.Join(failures, ", ")))
		return
	}

	h := w.Header()
	p.setOrigin(h, origin)
	h.Set("Access-Control-Allow-Methods", strings.Join(p.methods, ", "))
	if p.allHeaders && requested != "" {
		h.Set("Access-Control-Allow-Headers", requested)
	} else {
		h.Set("Access-Control-Allow-Headers", strings.Join(p.headers, ", "))
	}
	h.Set("Access-Control-Max-Age", p.maxAge)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
