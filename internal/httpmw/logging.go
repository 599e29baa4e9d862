package httpmw

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/reqctx"
)

// responseWriter wraps http.ResponseWriter to capture status and bytes written
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64

	// response.write span (starts on first WriteHeader/Write)
	ctx      context.Context
	reqStart time.Time

	writeSpan        trace.Span
	writeSpanStarted bool
	firstWriteAt     time.Duration
	writeBlocked     time.Duration
	writeErr         error
}

func (rw *responseWriter) ensureWriteSpan() {
	if rw.writeSpanStarted {
		return
	}
	rw.writeSpanStarted = true
	rw.firstWriteAt = time.Since(rw.reqStart)

	parent := trace.SpanFromContext(rw.ctx)
	if parent == nil || !parent.IsRecording() {
		return
	}

	tracer := otel.Tracer("linnemanlabs-api/httpmw")
	rw.ctx, rw.writeSpan = tracer.Start(rw.ctx, "response.write",
		trace.WithAttributes(
			attribute.Float64("http.server.ttfb_seconds", rw.firstWriteAt.Seconds()),
		),
	)
}

func (rw *responseWriter) finishWriteSpan() {
	if rw.writeSpan == nil {
		return
	}

	rw.writeSpan.SetAttributes(
		attribute.Int("http.response.status_code", rw.statusCode()),
		attribute.Int64("http.response.body.size", rw.bytes),
		attribute.Float64("http.server.write.block_seconds", rw.writeBlocked.Seconds()),
	)
	if rw.writeErr != nil {
		rw.writeSpan.RecordError(rw.writeErr)
		rw.writeSpan.SetStatus(codes.Error, rw.writeErr.Error())
	}
	rw.writeSpan.End()
}

func (rw *responseWriter) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.ensureWriteSpan()
	if rw.status == 0 {
		rw.status = code
	}
	start := time.Now()
	rw.ResponseWriter.WriteHeader(code)
	rw.writeBlocked += time.Since(start)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.ensureWriteSpan()
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	start := time.Now()
	n, err := rw.ResponseWriter.Write(b)
	rw.writeBlocked += time.Since(start)
	rw.bytes += int64(n)
	if err != nil && rw.writeErr == nil {
		rw.writeErr = err
	}
	return n, err
}

// support Flush if the underlying writer does.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// support Hijack (websockets, etc).
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Response headers carrying the active trace, set by AccessLog.
const (
	TraceIDHeader = "X-Trace-Id"
	SpanIDHeader  = "X-Span-Id"
)

// AccessLog binds a request-scoped logger into the context and writes
// exactly two entries per request: "request started" before dispatch and
// one of "request completed", "request failed" (an error reached the
// responder) or "request aborted" (client went away) after it.
//
// It expects RequestID to have run; a request that bypassed it is logged
// under the "unknown" id. When a server span is active its ids are echoed
// in X-Trace-Id and X-Span-Id.
func AccessLog(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			rc, ok := reqctx.From(ctx)
			if !ok {
				rc = reqctx.New(reqctx.Unknown, r, extractRealClientAddr(r, 0))
				ctx = reqctx.With(ctx, rc)
			}

			// seed chi's route context so the matched pattern is visible here
			// after the router returns
			if chi.RouteContext(ctx) == nil {
				ctx = context.WithValue(ctx, chi.RouteCtxKey, chi.NewRouteContext())
			}

			// echo the trace ids next to X-Request-ID so either finds the other
			scheme := schemeFromRequest(r)
			if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
				sc := span.SpanContext()
				w.Header().Set(TraceIDHeader, sc.TraceID().String())
				w.Header().Set(SpanIDHeader, sc.SpanID().String())
				span.SetAttributes(
					attribute.String("request_id", rc.ID),
					attribute.String("client.address", rc.ClientHost),
					attribute.String("url.scheme", scheme),
				)
			}

			L := base.With(
				"request_id", rc.ID,
				"method", rc.Method,
				"path", rc.Path,
				"client_host", rc.ClientHost,
			)
			ctx = log.WithContext(ctx, L)
			r = r.WithContext(ctx)

			started := []any{"url.scheme", scheme, "server.address", r.Host}
			if rc.UpstreamID != "" {
				started = append(started, "upstream_request_id", rc.UpstreamID)
			}
			L.Info(ctx, "request started", started...)

			rw := &responseWriter{
				ResponseWriter: w,
				ctx:            ctx,
				reqStart:       rc.Start,
			}

			next.ServeHTTP(rw, r)

			// child span that captures time blocked on writing the response to the client
			rw.finishWriteSpan()

			status := rw.statusCode()
			fields := []any{
				"status_code", status,
				"duration_seconds", roundSeconds(rc.Elapsed()),
				"http.response.body.size", rw.bytes,
				"http.route", routePattern(r),
			}

			switch err := rc.Err(); {
			case err == nil && ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
				L.Warn(ctx, "request aborted", fields...)
			case err == nil:
				L.Info(ctx, "request completed", fields...)
			case status >= http.StatusInternalServerError:
				L.Error(ctx, err, "request failed", append(fields, "error", err.Error())...)
			default:
				L.Warn(ctx, "request failed", append(fields, "error", err.Error())...)
			}
		})
	}
}

// roundSeconds reports d in seconds rounded to 4 decimal places.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1e4) / 1e4
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

var validSchemes = map[string]bool{"http": true, "https": true}

func schemeFromRequest(r *http.Request) string {
	// forwarded proto survives only when extractRealClientAddr trusted the peer
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		if s := strings.ToLower(strings.TrimSpace(first)); validSchemes[s] {
			return s
		}
	}

	if r.URL != nil && validSchemes[strings.ToLower(r.URL.Scheme)] {
		return strings.ToLower(r.URL.Scheme)
	}

	if r.TLS != nil {
		return "https"
	}
	return "http"
}
