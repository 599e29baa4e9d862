package docs

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-yaml"

	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// pageCSP replaces the API's locked-down policy on the HTML pages, which
// load their renderer from the jsDelivr CDN.
const pageCSP = "default-src 'none'; " +
	"script-src 'unsafe-inline' https://cdn.jsdelivr.net; " +
	"style-src 'unsafe-inline' https://cdn.jsdelivr.net https://fonts.googleapis.com; " +
	"font-src https://fonts.gstatic.com; " +
	"img-src 'self' data: https://cdn.jsdelivr.net; " +
	"connect-src 'self'; worker-src blob:; " +
	"frame-ancestors 'none'; base-uri 'none'; form-action 'none'"

// document bodies never change after startup
const cacheControl = "public, max-age=3600"

type asset struct {
	contentType string
	csp         string
	body        []byte
	etag        string
}

// Handler serves the pre-rendered documentation. It implements
// httpserver.RouteRegistrar.
type Handler struct {
	prefix  string
	json    asset
	yaml    asset
	swagger asset
	redoc   asset
}

// New renders doc in every format up front so requests never fail.
func New(doc Document, prefix string) (*Handler, error) {
	js, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, xerrors.Wrap(err, "encode openapi json")
	}
	ys, err := yaml.Marshal(doc)
	if err != nil {
		return nil, xerrors.Wrap(err, "encode openapi yaml")
	}

	page := struct{ Title, SpecURL string }{doc.Info.Title, prefix + "/openapi.json"}
	swagger, err := render("swagger.html", page)
	if err != nil {
		return nil, err
	}
	redoc, err := render("redoc.html", page)
	if err != nil {
		return nil, err
	}

	return &Handler{
		prefix:  prefix,
		json:    newAsset("application/json", "", js),
		yaml:    newAsset("application/yaml", "", ys),
		swagger: newAsset("text/html; charset=utf-8", pageCSP, swagger),
		redoc:   newAsset("text/html; charset=utf-8", pageCSP, redoc),
	}, nil
}

func newAsset(contentType, csp string, body []byte) asset {
	return asset{contentType: contentType, csp: csp, body: body, etag: etag(body)}
}

func render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, xerrors.Wrapf(err, "render %s", name)
	}
	return buf.Bytes(), nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get(h.prefix+"/openapi.json", h.json.ServeHTTP)
	r.Get(h.prefix+"/openapi.yaml", h.yaml.ServeHTTP)
	r.Get(h.prefix+"/docs", h.swagger.ServeHTTP)
	r.Get(h.prefix+"/redoc", h.redoc.ServeHTTP)
}

func (a asset) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hdr := w.Header()
	hdr.Set("Content-Type", a.contentType)
	hdr.Set("Cache-Control", cacheControl)
	hdr.Set("ETag", a.etag)
	if a.csp != "" {
		hdr.Set("Content-Security-Policy", a.csp)
	}
	if r.Header.Get("If-None-Match") == a.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	_, _ = w.Write(a.body)
}
