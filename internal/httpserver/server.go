package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// NewHandler builds the router and wraps it in the fixed stage list.
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	rs := opts.Responder
	if rs == nil {
		rs = &apierr.Responder{}
	}

	r := chi.NewRouter()

	// Compress JSON and the docs pages
	r.Use(middleware.Compress(5,
		"application/json",
		"application/yaml",
		"text/html",
	))

	// HEAD falls through to the GET handler when no HEAD route exists
	r.Use(middleware.GetHead)

	// rename the server span to the matched pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	// set before routes so mounted subrouters inherit them
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		rs.Respond(w, req, apierr.HTTP(http.StatusNotFound, ""))
	})
	r.MethodNotAllowed(methodNotAllowed(r, rs))

	for _, rr := range opts.Routes {
		rr.RegisterRoutes(r)
	}

	// nil stages are skipped by Chain
	var metricsMW func(http.Handler) http.Handler
	var onPanic func()
	if opts.Metrics != nil {
		metricsMW = opts.Metrics.Middleware
		onPanic = opts.Metrics.IncHttpPanic
	}

	untraced := slices.Clone(opts.UntracedPaths)
	traced := otelhttp.NewMiddleware(
		"http.server",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return !slices.Contains(untraced, req.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			// AnnotateHTTPRoute will rename the span later to the final route pattern
			return req.Method + " " + req.URL.Path
		}),
		// WithPublicEndpointFn is the replacement for WithPublicEndpoint()
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)

	// outermost first
	return httpmw.Chain(r,
		httpmw.RequestID(opts.TrustedProxyHops),
		traced,
		httpmw.AccessLog(L),
		httpmw.SecurityHeaders(opts.HSTS),
		metricsMW,
		httpmw.Recover(rs, onPanic),
		httpmw.HostGuard(opts.AllowedHosts, rs),
		httpmw.CORS(opts.CORS, rs),
		httpmw.MaxBody(opts.MaxBodyBytes, rs),
		bindRoutes(r),
	)
}

// bindRoutes sets Routes on a route context seeded by AccessLog or the
// metrics stage. chi only fills it in for contexts it creates itself, and
// GetHead matches against it.
func bindRoutes(root chi.Routes) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.Routes == nil {
				rctx.Routes = root
			}
			next.ServeHTTP(w, r)
		})
	}
}

// methods probed when building the Allow header of a 405
var probeMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

func methodNotAllowed(root chi.Routes, rs *apierr.Responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var allow []string
		for _, m := range probeMethods {
			ok := root.Match(chi.NewRouteContext(), m, r.URL.Path)
			if !ok && m == http.MethodHead {
				// served by GetHead
				ok = root.Match(chi.NewRouteContext(), http.MethodGet, r.URL.Path)
			}
			if ok {
				allow = append(allow, m)
			}
		}
		if len(allow) > 0 {
			w.Header().Set("Allow", strings.Join(allow, ", "))
		}
		rs.Respond(w, r, apierr.HTTP(http.StatusMethodNotAllowed, ""))
	}
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
	DefaultShutdownTimeout   = 5 * time.Second
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8000"
	}

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		L.Info(ctx, "http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, DefaultShutdownTimeout)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
