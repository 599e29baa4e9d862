package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-api/internal/version"
)

// ServerMetrics owns a private registry so tests and multiple servers in
// one process never collide on the global one.
type ServerMetrics struct {
	reg       *prometheus.Registry
	handler   http.Handler
	inflight  prometheus.Gauge
	reqTotal  *prometheus.CounterVec
	reqDur    *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
	buildInfo *prometheus.GaugeVec

	// 5xx responses by route (SLI)
	serverErrors *prometheus.CounterVec
	// every error envelope by error kind and status
	apiErrors      *prometheus.CounterVec
	httpPanicTotal prometheus.Counter

	profilingActive prometheus.Gauge
	tracingActive   prometheus.Gauge
	draining        prometheus.Gauge
}

// New returns a fresh registry with the Go and process collectors and the
// HTTP metrics. Labels are bounded: method, route pattern, status, kind.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "environment", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		serverErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_server_errors_total",
			Help: "Total 5xx HTTP responses by method and route (SLI)",
		}, []string{"method", "route"}),
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Error envelopes written by error kind and status",
		}, []string{"kind", "status"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		tracingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracing_active",
			Help: "Whether OTLP trace export is active (1) or disabled/failed (0)",
		}),
		draining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "server_draining",
			Help: "Set to 1 once graceful shutdown has begun",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.buildInfo,
		m.serverErrors,
		m.apiErrors,
		m.httpPanicTotal,
		m.profilingActive,
		m.tracingActive,
		m.draining,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Registry is exposed for tests and for callers registering extra collectors.
func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

func (m *ServerMetrics) IncHttpPanic() { m.httpPanicTotal.Inc() }

// ObserveError counts one error envelope. It is wired to the error
// responder so every rejection path is counted exactly once.
func (m *ServerMetrics) ObserveError(kind string, status int) {
	m.apiErrors.WithLabelValues(kind, strconv.Itoa(status)).Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfo(app, environment, appVersion string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"environment": environment,
		"version":     appVersion,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolGauge(active)) }
func (m *ServerMetrics) SetTracingActive(active bool)   { m.tracingActive.Set(boolGauge(active)) }
func (m *ServerMetrics) SetDraining(draining bool)      { m.draining.Set(boolGauge(draining)) }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
