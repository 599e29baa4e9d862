package apihttp

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/health"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

// Options configures the API routes. It is copied from the immutable
// settings at startup.
type Options struct {
	AppName     string
	Version     string
	Environment string
	// Prefix is the versioned mount point, e.g. /api/v1.
	Prefix    string
	Checks    *health.Checks
	Responder *apierr.Responder
	// Now is overridable in tests.
	Now func() time.Time
}

// API implements httpserver.RouteRegistrar.
type API struct {
	opts     Options
	validate *validator.Validate
	// root is the router routes are registered on, walked by the index
	root chi.Routes
}

func NewAPI(opts Options) *API {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Prefix = "/" + strings.Trim(opts.Prefix, "/")
	return &API{opts: opts, validate: newValidator()}
}

// RegisterRoutes attaches / and the versioned health, ready and routes
// endpoints.
func (api *API) RegisterRoutes(r chi.Router) {
	api.root = r
	h := api.opts.Responder.Handler

	r.Get("/", h(api.welcome))
	r.Route(api.opts.Prefix, func(r chi.Router) {
		r.Get("/health", h(api.health))
		r.Get("/ready", h(api.ready))
		r.Get("/routes", h(api.routes))
	})
}

func (api *API) timestamp() string {
	return api.opts.Now().UTC().Format(time.RFC3339Nano)
}

func (api *API) welcome(w http.ResponseWriter, r *http.Request) error {
	apierr.WriteJSON(w, http.StatusOK, Welcome{
		Message: "Welcome to " + api.opts.AppName,
		Version: api.opts.Version,
		Docs:    api.opts.Prefix + "/docs",
		Health:  api.opts.Prefix + "/health",
	})
	return nil
}

func (api *API) health(w http.ResponseWriter, r *http.Request) error {
	log.FromContext(r.Context()).Debug(r.Context(), "health check requested")
	apierr.WriteJSON(w, http.StatusOK, HealthStatus{
		Status:      "healthy",
		Timestamp:   api.timestamp(),
		Version:     api.opts.Version,
		Environment: api.opts.Environment,
	})
	return nil
}

func (api *API) ready(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	L := log.FromContext(ctx)
	L.Debug(ctx, "readiness check requested")

	rep := api.opts.Checks.Run(ctx)
	checks := make(map[string]bool, len(rep.Checks))
	for name, status := range rep.Checks {
		ok := status == health.StatusOK
		checks[name] = ok
		if !ok {
			L.Warn(ctx, "readiness check failed", "check", name, "reason", status)
		}
	}

	// reports only; the ops /-/ready endpoint carries the 503 while draining
	apierr.WriteJSON(w, http.StatusOK, ReadinessStatus{
		Ready:     rep.Ready,
		Checks:    checks,
		Timestamp: api.timestamp(),
	})
	return nil
}

func (api *API) routes(w http.ResponseWriter, r *http.Request) error {
	pq, err := parsePageQuery(api.validate, r.URL.Query())
	if err != nil {
		return err
	}

	all, err := api.routeIndex()
	if err != nil {
		return err
	}
	apierr.WriteJSON(w, http.StatusOK, Paginate(all, pq.Page, pq.PageSize))
	return nil
}

// routeIndex lists every registered method and path, sorted by path then
// method.
func (api *API) routeIndex() ([]RouteInfo, error) {
	if api.root == nil {
		return []RouteInfo{}, nil
	}
	var out []RouteInfo
	err := chi.Walk(api.root, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if len(route) > 1 {
			route = strings.TrimSuffix(route, "/")
		}
		out = append(out, RouteInfo{Method: method, Path: route})
		return nil
	})
	if err != nil {
		return nil, apierr.Unexpected(err)
	}
	slices.SortFunc(out, func(a, b RouteInfo) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return strings.Compare(a.Method, b.Method)
	})
	return slices.Compact(out), nil
}
