package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/metrics"
)

// routeFunc adapts a function to RouteRegistrar.
type routeFunc func(r chi.Router)

func (f routeFunc) RegisterRoutes(r chi.Router) { f(r) }

// syncBuffer guards the log buffer against the server goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func withMessage(recs []map[string]any, msg string) []map[string]any {
	var out []map[string]any
	for _, r := range recs {
		if r["message"] == msg {
			out = append(out, r)
		}
	}
	return out
}

func testLogger(t *testing.T) (log.Logger, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	L, err := log.New(log.Options{App: "test", JsonFormat: true, Writer: buf})
	require.NoError(t, err)
	return L, buf
}

func testRoutes() RouteRegistrar {
	return routeFunc(func(r chi.Router) {
		r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
			apierr.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
		})
		r.Post("/items", func(w http.ResponseWriter, r *http.Request) {
			_, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
				return
			}
			w.WriteHeader(http.StatusCreated)
		})
		r.Get("/items", func(w http.ResponseWriter, _ *http.Request) {})
		r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
	})
}

func newTestHandler(t *testing.T, mutate func(*Options)) (http.Handler, *syncBuffer) {
	t.Helper()
	L, buf := testLogger(t)
	opts := &Options{
		Logger:       L,
		Responder:    &apierr.Responder{},
		Routes:       []RouteRegistrar{testRoutes()},
		MaxBodyBytes: 1 << 20,
		CORS: httpmw.CORSOptions{
			AllowedOrigins:   []string{"http://localhost:3000"},
			AllowedMethods:   []string{"*"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		},
	}
	if mutate != nil {
		mutate(opts)
	}
	return NewHandler(opts), buf
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool `json:"success"`
	Error   struct {
		Message   string          `json:"message"`
		Details   json.RawMessage `json:"details"`
		RequestID string          `json:"request_id"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestNewHandler_RequestIDOnEveryResponse(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	seen := map[string]bool{}
	for _, path := range []string{"/ok", "/missing", "/boom"} {
		rec := do(h, httptest.NewRequest(http.MethodGet, path, nil))
		id := rec.Header().Get("X-Request-ID")
		require.Len(t, id, 36, path)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNewHandler_InboundRequestIDNotReused(t *testing.T) {
	h, buf := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "upstream-abc")
	rec := do(h, req)

	assert.NotEqual(t, "upstream-abc", rec.Header().Get("X-Request-ID"))
	started := withMessage(buf.records(t), "request started")
	require.Len(t, started, 1)
	assert.Equal(t, "upstream-abc", started[0]["upstream_request_id"])
}

func TestNewHandler_NotFoundEnvelope(t *testing.T) {
	h, buf := newTestHandler(t, nil)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Not Found", env.Error.Message)
	assert.Equal(t, "null", string(env.Error.Details))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), env.Error.RequestID)

	recs := buf.records(t)
	httpErr := withMessage(recs, "http error")
	require.Len(t, httpErr, 1)
	assert.Equal(t, "warn", httpErr[0]["level"])
	assert.Len(t, withMessage(recs, "request failed"), 1)
	assert.Empty(t, withMessage(recs, "request completed"))
}

func TestNewHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(h, httptest.NewRequest(http.MethodDelete, "/items", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, HEAD, POST", rec.Header().Get("Allow"))
	assert.Equal(t, "Method Not Allowed", decodeEnvelope(t, rec).Error.Message)
}

func TestNewHandler_HeadServedByGet(t *testing.T) {
	h, _ := newTestHandler(t, func(o *Options) { o.Metrics = metrics.New() })

	rec := do(h, httptest.NewRequest(http.MethodHead, "/ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	// no GET route either
	rec = do(h, httptest.NewRequest(http.MethodHead, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBindRoutes(t *testing.T) {
	root := chi.NewRouter()
	var got chi.Routes
	h := bindRoutes(root)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			got = rctx.Routes
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Same(t, root, got)

	// no route context: nothing to bind
	got = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Nil(t, got)
}

func TestNewHandler_PanicBecomes500(t *testing.T) {
	m := metrics.New()
	h, buf := newTestHandler(t, func(o *Options) { o.Metrics = m })

	rec := do(h, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Internal server error", env.Error.Message)
	assert.NotContains(t, rec.Body.String(), "kaboom")

	recs := buf.records(t)
	unexpected := withMessage(recs, "unexpected error")
	require.Len(t, unexpected, 1)
	assert.Equal(t, "error", unexpected[0]["level"])

	failed := withMessage(recs, "request failed")
	require.Len(t, failed, 1)
	assert.Equal(t, float64(500), failed[0]["status_code"])

	expected := `
# HELP http_panic_total Total number of recovered handler panics
# TYPE http_panic_total counter
http_panic_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "http_panic_total"))
}

func TestNewHandler_SecurityHeaders(t *testing.T) {
	h, _ := newTestHandler(t, func(o *Options) { o.HSTS = true })

	for _, path := range []string{"/ok", "/nope"} {
		rec := do(h, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), path)
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"), path)
		assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"), path)
		assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"), path)
	}
}

func TestNewHandler_HostGuardBeforeCORSAndRouting(t *testing.T) {
	h, _ := newTestHandler(t, func(o *Options) { o.AllowedHosts = []string{"api.example.com"} })

	// preflight from an allowed origin is still rejected on a bad host
	req := httptest.NewRequest(http.MethodOptions, "/ok", nil)
	req.Host = "evil.example.net"
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := do(h, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid host header", decodeEnvelope(t, rec).Error.Message)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Host = "api.example.com:8000"
	assert.Equal(t, http.StatusOK, do(h, req).Code)
}

func TestNewHandler_PreflightAnsweredBeforeRouting(t *testing.T) {
	h, buf := newTestHandler(t, nil)

	// no OPTIONS route is registered for /ok
	req := httptest.NewRequest(http.MethodOptions, "/ok", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := do(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Len(t, withMessage(buf.records(t), "request completed"), 1)
}

func TestNewHandler_SimpleCORSRequest(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := do(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID")
}

func TestNewHandler_BodyTooLarge(t *testing.T) {
	h, _ := newTestHandler(t, func(o *Options) { o.MaxBodyBytes = 8 })

	req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader("0123456789abcdef"))
	rec := do(h, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request body too large", decodeEnvelope(t, rec).Error.Message)
}

func TestNewHandler_MetricsUseRoutePattern(t *testing.T) {
	m := metrics.New()
	h, _ := newTestHandler(t, func(o *Options) { o.Metrics = m })

	do(h, httptest.NewRequest(http.MethodGet, "/ok", nil))
	do(h, httptest.NewRequest(http.MethodGet, "/nope/1", nil))
	do(h, httptest.NewRequest(http.MethodGet, "/nope/2", nil))

	n, err := testutil.GatherAndCount(m.Registry(), "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series for /ok and one for unmatched")
}

func TestNewHandler_AccessLogLines(t *testing.T) {
	h, buf := newTestHandler(t, nil)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	recs := buf.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, "request started", recs[0]["message"])
	assert.Equal(t, "request completed", recs[1]["message"])
	assert.Equal(t, rec.Header().Get("X-Request-ID"), recs[1]["request_id"])
	assert.Equal(t, "/ok", recs[1]["http.route"])
	assert.Equal(t, float64(200), recs[1]["status_code"])
	assert.Contains(t, recs[1], "duration_seconds")
}

func TestNewHandler_Defaults(t *testing.T) {
	h := NewHandler(&Options{})
	rec := do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeEnvelope(t, rec).Error.Message)
}

func TestNewServer_Timeouts(t *testing.T) {
	srv := NewServer(":0", http.NotFoundHandler())
	assert.Equal(t, DefaultReadHeaderTimeout, srv.ReadHeaderTimeout)
	assert.Equal(t, DefaultReadTimeout, srv.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, srv.WriteTimeout)
	assert.Equal(t, DefaultIdleTimeout, srv.IdleTimeout)
	assert.Equal(t, DefaultMaxHeaderBytes, srv.MaxHeaderBytes)
}

func TestStart_ServesAndStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	L, _ := testLogger(t)
	stop, err := Start(context.Background(), &Options{
		Logger: L,
		Addr:   addr,
		Routes: []RouteRegistrar{testRoutes()},
	})
	require.NoError(t, err)

	client := &http.Client{Timeout: 2 * time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr + "/ok")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, stop(context.Background()))
	require.NoError(t, stop(context.Background()), "stop is idempotent")

	_, err = client.Get("http://" + addr + "/ok")
	assert.Error(t, err)
}

func TestStart_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = Start(context.Background(), &Options{Addr: ln.Addr().String()})
	require.Error(t, err)
}
