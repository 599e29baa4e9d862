package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/apihttp"
	"github.com/keithlinneman/linnemanlabs-api/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-api/internal/docs"
	"github.com/keithlinneman/linnemanlabs-api/internal/health"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-api/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-api/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-api/internal/prof"
	v "github.com/keithlinneman/linnemanlabs-api/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	var showVersion bool
	var envFile string
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file; real environment variables take precedence")
	flag.Parse()

	vi := v.Get()
	if showVersion {
		fmt.Println(vi.String())
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// invalid ENVIRONMENT / LOG_LEVEL (or anything else) aborts startup
	s, err := cfg.Load(ctx, cfg.LoadOptions{EnvFile: envFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}

	logOpts := s.LogOptions()
	logOpts.Commit = vi.Commit
	logOpts.BuildId = vi.BuildId
	lg, err := log.New(logOpts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		return 1
	}
	// no-op for zerolog on stdout, kept so a buffered backend gets flushed
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, fmt.Sprintf("Starting %s v%s", s.AppName, s.AppVersion),
		"environment", s.Environment,
		"debug", s.Debug,
		"build", vi.String(),
		"addr", s.Addr(),
		"admin_port", s.AdminPort,
		"api_prefix", s.APIV1Prefix,
		"log_level", s.LogLevel,
		"allowed_hosts", []string(s.AllowedHosts),
		"cors_origins", []string(s.CORSOrigins),
		"enable_metrics", s.EnableMetrics,
		"enable_pprof", s.EnablePprof,
		"enable_tracing", s.EnableTracing,
		"enable_pyroscope", s.EnablePyroscope,
		"rate_limit_enabled", s.RateLimitEnabled,
	)

	// Setup pyroscope profiling
	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       s.EnablePyroscope,
		AppName:       s.AppName,
		ServerAddress: s.PyroServer,
		TenantID:      s.PyroTenantID,
		Tags: map[string]string{
			"app":         s.AppName,
			"component":   "server",
			"environment": s.Environment,
			"version":     s.AppVersion,
			"commit":      vi.Commit,
		},
	})
	// prof.Start logs its own failure; profiling is best effort
	defer stopProf()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, otelErr := otelx.Init(ctx, otelx.Options{
		Enabled:     s.EnableTracing,
		Endpoint:    s.OTLPEndpoint,
		Insecure:    true,
		Sample:      s.TraceSample,
		Service:     s.AppName,
		Version:     s.AppVersion,
		Environment: s.Environment,
	})
	if otelErr != nil {
		L.Error(ctx, otelErr, "otel init failed")
	}

	m := metrics.New()
	m.SetBuildInfo(s.AppName, s.Environment, s.AppVersion, vi)
	m.SetProfilingActive(s.EnablePyroscope && profErr == nil)
	m.SetTracingActive(s.EnableTracing && otelErr == nil)

	rs := &apierr.Responder{
		OnError: func(k apierr.Kind, status int) { m.ObserveError(k.String(), status) },
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate
	checks := health.NewChecks(&gate)
	// database and cache probes register here once those backends exist

	docsHandler, err := docs.New(docs.Build(s.AppName, s.AppVersion, s.APIV1Prefix), s.APIV1Prefix)
	if err != nil {
		L.Error(ctx, err, "failed to render api docs")
		return 1
	}

	api := apihttp.NewAPI(apihttp.Options{
		AppName:     s.AppName,
		Version:     s.AppVersion,
		Environment: s.Environment,
		Prefix:      s.APIV1Prefix,
		Checks:      checks,
		Responder:   rs,
	})

	httpStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Addr:         s.Addr(),
		Responder:    rs,
		Metrics:      m,
		Routes:       []httpserver.RouteRegistrar{api, docsHandler},
		AllowedHosts: s.AllowedHosts,
		CORS: httpmw.CORSOptions{
			AllowedOrigins:   s.CORSOrigins,
			AllowedMethods:   s.CORSAllowMethods,
			AllowedHeaders:   s.CORSAllowHeaders,
			AllowCredentials: s.CORSAllowCredentials,
		},
		TrustedProxyHops: s.TrustedProxyHops,
		MaxBodyBytes:     s.MaxBodyBytes,
		HSTS:             s.IsProduction(),
		UntracedPaths:    []string{s.APIV1Prefix + "/health", s.APIV1Prefix + "/ready"},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener", "addr", s.Addr())
		return 1
	}
	defer func() { _ = httpStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks and pprof
	// we reject connections from public ips in middleware to prevent
	// accidental exposure if the port is ever published
	opsStop := func(context.Context) error { return nil }
	if s.EnableMetrics || s.EnablePprof {
		opsStop, err = opshttp.Start(ctx, L, opshttp.Options{
			Port:        s.AdminPort,
			Metrics:     m.Handler(),
			EnablePprof: s.EnablePprof,
			Health:      health.Fixed(true, ""),
			Readiness:   checks.Probe(),
			OnPanic:     m.IncHttpPanic,
		})
		if err != nil {
			L.Error(ctx, err, "failed to start ops http listener")
			return 1
		}
	}
	defer func() { _ = opsStop(context.Background()) }()

	L.Info(ctx, "Application created successfully")

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil && !errors.Is(err, errNoNotifySocket) {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	bg := context.Background()
	L.Info(bg, fmt.Sprintf("Shutting down %s", s.AppName))

	// fail readiness so load balancers stop sending new requests
	gate.Set("draining")
	m.SetDraining(true)

	if s.ShutdownDrain > 0 {
		L.Info(bg, "draining before shutdown", "drain", s.ShutdownDrain.String())
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(s.ShutdownDrain):
			L.Info(bg, "drain period complete")
		case <-forceCh:
			L.Warn(bg, "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	if err := httpStop(shutdownCtx); err != nil {
		L.Error(bg, err, "http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}

	L.Info(bg, "shutdown complete")
	return 0
}

var errNoNotifySocket = errors.New("NOTIFY_SOCKET not set")

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := strings.TrimSpace(os.Getenv("NOTIFY_SOCKET"))
	if addr == "" {
		return errNoNotifySocket
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
