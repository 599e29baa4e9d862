package httpserver

import (
	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/metrics"
)

// RouteRegistrar attaches a group of routes to the public router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

type Options struct {
	Logger log.Logger
	// Addr is host:port; ":8000" when empty.
	Addr      string
	Responder *apierr.Responder
	Metrics   *metrics.ServerMetrics // optional
	Routes    []RouteRegistrar

	AllowedHosts     []string
	CORS             httpmw.CORSOptions
	TrustedProxyHops int
	MaxBodyBytes     int64
	HSTS             bool

	// UntracedPaths are never sampled (health probes).
	UntracedPaths []string
}
