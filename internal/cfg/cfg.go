package cfg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Settings is the process-wide configuration. It is built once by Load and
// passed by value to every component that needs it; nothing mutates it
// after startup.
type Settings struct {
	AppName     string `env:"APP_NAME" envDefault:"linnemanlabs-api"`
	AppVersion  string `env:"APP_VERSION" envDefault:"1.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	APIV1Prefix string `env:"API_V1_PREFIX" envDefault:"/api/v1"`

	Host      string `env:"HOST" envDefault:"0.0.0.0"`
	Port      int    `env:"PORT" envDefault:"8000"`
	AdminPort int    `env:"ADMIN_PORT" envDefault:"9000"`

	LogLevel          string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat         string `env:"LOG_FORMAT" envDefault:"json"`
	StacktraceLevel   string `env:"STACKTRACE_LEVEL" envDefault:"ERROR"`
	IncludeErrorLinks bool   `env:"INCLUDE_ERROR_LINKS" envDefault:"true"`
	MaxErrorLinks     int    `env:"MAX_ERROR_LINKS" envDefault:"5"`

	CORSOrigins          StringList `env:"CORS_ORIGINS" envDefault:"http://localhost:3000,http://localhost:8000"`
	CORSAllowCredentials bool       `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	CORSAllowMethods     StringList `env:"CORS_ALLOW_METHODS" envDefault:"*"`
	CORSAllowHeaders     StringList `env:"CORS_ALLOW_HEADERS" envDefault:"*"`
	AllowedHosts         StringList `env:"ALLOWED_HOSTS" envDefault:"*"`
	TrustedProxyHops     int        `env:"TRUSTED_PROXY_HOPS" envDefault:"0"`
	MaxBodyBytes         int64      `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	// Accepted and validated but not enforced.
	RateLimitEnabled   bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerMinute int  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`

	// Reserved for persistence backends; nothing connects to them yet.
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	EnableMetrics   bool    `env:"ENABLE_METRICS" envDefault:"true"`
	EnablePprof     bool    `env:"ENABLE_PPROF" envDefault:"false"`
	EnableTracing   bool    `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string  `env:"OTLP_ENDPOINT"`
	TraceSample     float64 `env:"TRACE_SAMPLE" envDefault:"0"`
	EnablePyroscope bool    `env:"ENABLE_PYROSCOPE" envDefault:"false"`
	PyroServer      string  `env:"PYRO_SERVER"`
	PyroTenantID    string  `env:"PYRO_TENANT"`

	ShutdownDrain time.Duration `env:"SHUTDOWN_DRAIN" envDefault:"5s"`

	SSMPath string `env:"CONFIG_SSM_PATH"`
}

// LoadOptions controls where Load reads configuration from.
type LoadOptions struct {
	// EnvFile is read if it exists; its values never override the real
	// environment. Defaults to ".env".
	EnvFile string

	// Environ replaces os.Environ() when non-nil.
	Environ []string

	// SSM is used when CONFIG_SSM_PATH is set. A client is built from the
	// default AWS config if nil.
	SSM ParameterLister
}

// Load builds Settings from the environment, an optional .env file and an
// optional SSM parameter path, normalizes it and validates it.
func Load(ctx context.Context, opts LoadOptions) (Settings, error) {
	vars := environMap(opts.Environ)

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := mergeEnvFile(vars, envFile); err != nil {
		return Settings{}, err
	}

	if path := strings.TrimSpace(vars["CONFIG_SSM_PATH"]); path != "" {
		params, err := fetchSSM(ctx, opts.SSM, path)
		if err != nil {
			return Settings{}, err
		}
		for k, v := range params {
			if _, set := vars[k]; !set {
				vars[k] = v
			}
		}
	}

	var s Settings
	err := env.ParseWithOptions(&s, env.Options{
		Environment: vars,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(StringList{}): func(v string) (any, error) { return ParseStringList(v) },
		},
	})
	if err != nil {
		return Settings{}, xerrors.Wrap(err, "parse environment")
	}

	s = s.normalized()
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func environMap(environ []string) map[string]string {
	if environ == nil {
		environ = os.Environ()
	}
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func mergeEnvFile(vars map[string]string, path string) error {
	fileVars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return xerrors.Wrapf(err, "read env file %s", path)
	}
	for k, v := range fileVars {
		if _, set := vars[k]; !set {
			vars[k] = v
		}
	}
	return nil
}

func (s Settings) normalized() Settings {
	s.Environment = strings.ToLower(strings.TrimSpace(s.Environment))
	s.LogLevel = strings.ToUpper(strings.TrimSpace(s.LogLevel))
	s.LogFormat = strings.ToLower(strings.TrimSpace(s.LogFormat))
	s.StacktraceLevel = strings.ToUpper(strings.TrimSpace(s.StacktraceLevel))

	p := strings.TrimRight(strings.TrimSpace(s.APIV1Prefix), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	s.APIV1Prefix = p
	return s
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(s Settings) error {
	var errs []error

	switch s.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("invalid ENVIRONMENT %q (must be one of development|staging|production)", s.Environment))
	}

	if _, err := log.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", s.LogLevel, err))
	}
	if s.StacktraceLevel != "" {
		if _, err := log.ParseLevel(s.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", s.StacktraceLevel, err))
		}
	}
	if s.LogFormat != "json" && s.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("invalid LOG_FORMAT %q (must be json|text)", s.LogFormat))
	}

	// Ports
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d (must be 1..65535)", s.Port))
	}
	if s.AdminPort < 1 || s.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", s.AdminPort))
	}
	if s.AdminPort == s.Port {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and PORT must differ (both %d)", s.Port))
	}

	if s.APIV1Prefix == "" {
		errs = append(errs, errors.New("API_V1_PREFIX must not be empty or /"))
	}
	if len(s.AllowedHosts) == 0 {
		errs = append(errs, errors.New("ALLOWED_HOSTS must list at least one host (use * to allow all)"))
	}
	if s.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE %d (must be >= 0)", s.RateLimitPerMinute))
	}
	if s.TrustedProxyHops < 0 {
		errs = append(errs, fmt.Errorf("invalid TRUSTED_PROXY_HOPS %d (must be >= 0)", s.TrustedProxyHops))
	}
	if s.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_BODY_BYTES %d (must be > 0)", s.MaxBodyBytes))
	}
	if s.ShutdownDrain < 0 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_DRAIN %s (must be >= 0)", s.ShutdownDrain))
	}

	// Tracing sample
	if s.TraceSample < 0 || s.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", s.TraceSample))
	}

	// Pyroscope (URL, scheme and tenant)
	if s.EnablePyroscope {
		if s.PyroServer == "" {
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(s.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", s.PyroServer))
		}
		if s.PyroTenantID == "" {
			errs = append(errs, errors.New("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if s.EnableTracing {
		if s.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(s.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", s.OTLPEndpoint, err))
		}
	}

	if s.IncludeErrorLinks && (s.MaxErrorLinks < 1 || s.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", s.MaxErrorLinks))
	}

	return errors.Join(errs...)
}

func (s Settings) IsProduction() bool { return s.Environment == EnvProduction }

// Addr is the public listen address.
func (s Settings) Addr() string { return net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) }

// SlogLevel returns the parsed LOG_LEVEL. Settings returned by Load always
// carry a valid level.
func (s Settings) SlogLevel() slog.Level {
	lvl, _ := log.ParseLevel(s.LogLevel)
	return lvl
}

func (s Settings) StackLevel() slog.Level {
	if s.StacktraceLevel == "" {
		return slog.LevelError
	}
	lvl, _ := log.ParseLevel(s.StacktraceLevel)
	return lvl
}

// LogOptions maps the logging fields onto log.Options.
func (s Settings) LogOptions() log.Options {
	return log.Options{
		App:               s.AppName,
		Version:           s.AppVersion,
		Environment:       s.Environment,
		Level:             s.SlogLevel(),
		StacktraceLevel:   s.StackLevel(),
		JsonFormat:        s.LogFormat == "json",
		IncludeErrorLinks: s.IncludeErrorLinks,
		MaxErrorLinks:     s.MaxErrorLinks,
	}
}
