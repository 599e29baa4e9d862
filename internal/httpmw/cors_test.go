package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
)

func corsHandler(opts CORSOptions, called *bool) http.Handler {
	return Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusNoContent)
	}), RequestID(0), CORS(opts, &apierr.Responder{}))
}

func preflight(origin, method, headers string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", method)
	if headers != "" {
		req.Header.Set("Access-Control-Request-Headers", headers)
	}
	return req
}

var strictCORS = CORSOptions{
	AllowedOrigins:   []string{"https://app.example.com"},
	AllowedMethods:   []string{"get", "POST"},
	AllowedHeaders:   []string{"Authorization"},
	AllowCredentials: true,
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	var called bool
	rec := httptest.NewRecorder()
	corsHandler(strictCORS, &called).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightAllowed(t *testing.T) {
	var called bool
	rec := httptest.NewRecorder()
	corsHandler(strictCORS, &called).ServeHTTP(rec, preflight("https://app.example.com", "POST", "authorization, content-type"))

	assert.False(t, called, "preflight must not reach the router")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	h := rec.Header()
	assert.Equal(t, "https://app.example.com", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", h.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET, POST", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "accept, accept-language, authorization, content-language, content-type", h.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", h.Get("Access-Control-Max-Age"))
	assert.Contains(t, h.Values("Vary"), "Origin")
}

func TestCORS_PreflightRejected(t *testing.T) {
	tests := []struct {
		name    string
		req     *http.Request
		message string
	}{
		{"origin", preflight("https://evil.test", "GET", ""), "Disallowed CORS origin"},
		{"method", preflight("https://app.example.com", "DELETE", ""), "Disallowed CORS method"},
		{"headers", preflight("https://app.example.com", "GET", "X-Secret"), "Disallowed CORS headers"},
		{"all", preflight("https://evil.test", "PUT", "X-Secret"), "Disallowed CORS origin, method, headers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			rec := httptest.NewRecorder()
			corsHandler(strictCORS, &called).ServeHTTP(rec, tt.req)

			assert.False(t, called)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.Equal(t, tt.message, env.Error.Message)
			assert.Equal(t, rec.Header().Get("X-Request-ID"), env.Error.RequestID)
		})
	}
}

func TestCORS_PreflightWildcards(t *testing.T) {
	opts := CORSOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"*"},
		AllowedHeaders: []string{"*"},
		MaxAge:         60,
	}
	var called bool
	rec := httptest.NewRecorder()
	corsHandler(opts, &called).ServeHTTP(rec, preflight("https://anywhere.test", "PATCH", "X-Custom-Thing"))

	assert.Equal(t, http.StatusOK, rec.Code)
	h := rec.Header()
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, h.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "X-Custom-Thing", h.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "DELETE, GET, HEAD, OPTIONS, PATCH, POST, PUT", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "60", h.Get("Access-Control-Max-Age"))
}

func TestCORS_SimpleRequest(t *testing.T) {
	tests := []struct {
		name       string
		opts       CORSOptions
		origin     string
		wantOrigin string
		wantCreds  string
	}{
		{"listed origin", strictCORS, "https://app.example.com", "https://app.example.com", "true"},
		{"unlisted origin", strictCORS, "https://evil.test", "", ""},
		{"wildcard", CORSOptions{AllowedOrigins: []string{"*"}}, "https://x.test", "*", ""},
		{"wildcard with credentials", CORSOptions{AllowedOrigins: []string{"*"}, AllowCredentials: true}, "https://x.test", "https://x.test", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			corsHandler(tt.opts, &called).ServeHTTP(rec, req)

			assert.True(t, called)
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, rec.Header().Get("Access-Control-Allow-Credentials"))
			if tt.wantOrigin != "" {
				assert.Equal(t, "X-Request-ID", rec.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

func TestCORS_PlainOptionsIsNotPreflight(t *testing.T) {
	var called bool
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	corsHandler(strictCORS, &called).ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}
