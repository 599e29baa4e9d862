// Package reqctx holds the per-request correlation state shared by the
// middleware stages, the error responder and handlers.
//
// A RequestContext is created once by the request-id stage, stored in the
// request's context.Context and discarded when the handler chain returns.
package reqctx

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Unknown is reported in place of a request id when none is in context.
const Unknown = "unknown"

// Header carries the correlation id on every response.
const Header = "X-Request-ID"

type RequestContext struct {
	ID         string
	UpstreamID string
	Method     string
	Path       string
	ClientHost string
	Start      time.Time

	mu  sync.Mutex
	err error
}

// New builds the context for r. Start is taken from the monotonic clock.
func New(id string, r *http.Request, clientHost string) *RequestContext {
	return &RequestContext{
		ID:         id,
		UpstreamID: r.Header.Get(Header),
		Method:     r.Method,
		Path:       r.URL.Path,
		ClientHost: clientHost,
		Start:      time.Now(),
	}
}

// Fail records the error that produced the response. The first one wins.
func (rc *RequestContext) Fail(err error) {
	if rc == nil || err == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.err == nil {
		rc.err = err
	}
}

// Err returns the recorded failure, if any.
func (rc *RequestContext) Err() error {
	if rc == nil {
		return nil
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.err
}

func (rc *RequestContext) Elapsed() time.Duration { return time.Since(rc.Start) }

type key struct{}

func With(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, key{}, rc)
}

func From(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(key{}).(*RequestContext)
	return rc, ok && rc != nil
}

// ID returns the correlation id in ctx or Unknown.
func ID(ctx context.Context) string {
	if rc, ok := From(ctx); ok && rc.ID != "" {
		return rc.ID
	}
	return Unknown
}
