package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type zeroLogger struct {
	zl                zerolog.Logger
	stackLevel        zerolog.Level
	includeErrorLinks bool
	maxErrorLinks     int
}

type hasPC interface {
	PC() uintptr
}

type hasStack interface {
	StackPCs() []uintptr
}

// frames between the caller and zerolog's caller hook: Info/Warn/... and logAt
const wrapperFrames = 2

func newZerolog(opts Options) (Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	// enable stack data enrichment at or above StacktraceLevel
	if opts.StacktraceLevel == 0 {
		opts.StacktraceLevel = slog.LevelError
	}

	// json or console
	if !opts.JsonFormat {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}

	zctx := zerolog.New(w).
		Level(toZerolog(opts.Level)).
		Hook(otelHook{}).
		With().
		Timestamp().
		CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + wrapperFrames).
		Str("app", opts.App)
	if opts.Version != "" {
		zctx = zctx.Str("app_version", opts.Version)
	}
	if opts.Environment != "" {
		zctx = zctx.Str("environment", opts.Environment)
	}
	if opts.Commit != "" {
		zctx = zctx.Str("commit", opts.Commit)
	}
	if opts.BuildId != "" {
		zctx = zctx.Str("build_id", opts.BuildId)
	}

	if opts.MaxErrorLinks <= 0 {
		opts.MaxErrorLinks = 8
	}
	return &zeroLogger{
		zl:                zctx.Logger(),
		stackLevel:        toZerolog(opts.StacktraceLevel),
		includeErrorLinks: opts.IncludeErrorLinks,
		maxErrorLinks:     opts.MaxErrorLinks,
	}, nil
}

// toZerolog maps the slog-style levels used across the app onto zerolog's.
// Critical maps to FatalLevel, which is only ever emitted through WithLevel.
func toZerolog(lvl slog.Level) zerolog.Level {
	switch {
	case lvl < slog.LevelInfo:
		return zerolog.DebugLevel
	case lvl < slog.LevelWarn:
		return zerolog.InfoLevel
	case lvl < slog.LevelError:
		return zerolog.WarnLevel
	case lvl < LevelCritical:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}

func (z *zeroLogger) With(kv ...any) Logger {
	// zerolog contexts copy on write so children are safe to share
	return &zeroLogger{
		zl:                z.zl.With().Fields(pairs(kv)).Logger(),
		stackLevel:        z.stackLevel,
		includeErrorLinks: z.includeErrorLinks,
		maxErrorLinks:     z.maxErrorLinks,
	}
}

func (z *zeroLogger) Debug(ctx context.Context, msg string, kv ...any) {
	z.logAt(ctx, zerolog.DebugLevel, nil, msg, kv)
}
func (z *zeroLogger) Info(ctx context.Context, msg string, kv ...any) {
	z.logAt(ctx, zerolog.InfoLevel, nil, msg, kv)
}
func (z *zeroLogger) Warn(ctx context.Context, msg string, kv ...any) {
	z.logAt(ctx, zerolog.WarnLevel, nil, msg, kv)
}
func (z *zeroLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if err != nil {
		surface, root := classifyTypes(err)
		kv = append(kv,
			"err", err,
			"error_type", surface,
			"cause_type", root,
		)
		if chain := errorChain(err); len(chain) > 0 {
			kv = append(kv, "error_chain", chain)
		}
		if z.includeErrorLinks {
			kv = append(kv, "error_links", chainLinks(err, z.maxErrorLinks))
		}
	}
	z.logAt(ctx, zerolog.ErrorLevel, err, msg, kv)
}
func (z *zeroLogger) Sync() error { return nil }

func (z *zeroLogger) logAt(ctx context.Context, lvl zerolog.Level, err error, msg string, kv []any) {
	e := z.zl.WithLevel(lvl)
	if e == nil {
		// level disabled
		return
	}
	if ctx != nil {
		e = e.Ctx(ctx)
	}
	e = e.Fields(pairs(kv))

	if lvl >= z.stackLevel {
		var hs hasStack
		if err != nil && errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
			e = e.Str("stack", renderPCs(hs.StackPCs()))
		} else {
			e = e.Str("stack", captureCleanStack())
		}
	}
	e.Msg(msg)
}

// pairs drops keys that are not strings and a trailing odd value.
func pairs(kv []any) []any {
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		if _, ok := kv[i].(string); ok {
			out = append(out, kv[i], kv[i+1])
		}
	}
	return out
}

// otelHook adds trace and span ids from the event context.
type otelHook struct{}

func (otelHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		e.Str("trace_id", sc.TraceID().String())
		e.Str("span_id", sc.SpanID().String())
	}
}

func skipFrame(fn string) bool {
	return strings.HasPrefix(fn, "github.com/rs/zerolog") ||
		strings.Contains(fn, "/internal/log.(*zeroLogger)") ||
		strings.Contains(fn, "/internal/log.captureCleanStack")
}

func captureCleanStack() string {
	const maxDepth = 64
	pcs := make([]uintptr, maxDepth)
	// skip: runtime.Callers, captureCleanStack
	n := runtime.Callers(2, pcs)
	return strings.TrimSpace(renderPCs(pcs[:n]))
}

// render PCs from error stack collections into func:file:line lines
func renderPCs(pcs []uintptr) string {
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	include := false
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		if !include && !skipFrame(fr.Function) {
			include = true
		}
		if include {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}

func errorChain(err error) []string {
	out := make([]string, 0, 8)
	var prev string
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if msg != prev {
			out = append(out, msg)
			prev = msg
		}
	}

	// handle errors.Join(...)
	type multi interface{ Unwrap() []error }
	if m, ok := any(err).(multi); ok {
		for _, e := range m.Unwrap() {
			if s := e.Error(); s != prev {
				out = append(out, s)
				prev = s
			}
		}
	}
	return out
}

func chainLinks(err error, max int) []map[string]any {
	links := make([]map[string]any, 0, 8)
	depth := 0
	for e := err; e != nil && (max <= 0 || depth < max); e = errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		havePos := false

		if hp, ok := any(e).(hasPC); ok {
			if fn, file, line, ok := frameFromPC(hp.PC()); ok {
				link["func"], link["file"], link["line"] = fn, file, line
				havePos = true
			}
		} else if hs, ok := any(e).(hasStack); ok {
			if fn, file, line, ok := firstExtFrame(hs.StackPCs()); ok {
				link["func"], link["file"], link["line"] = fn, file, line
				havePos = true
			}
		}
		if depth == 0 || havePos {
			links = append(links, link)
		}
		depth++
	}
	return links
}

func frameFromPC(pc uintptr) (fn, file string, line int, ok bool) {
	if pc == 0 {
		return "", "", 0, false
	}
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return fr.Function, fr.File, fr.Line, true
}

func firstExtFrame(pcs []uintptr) (fn, file string, line int, ok bool) {
	if len(pcs) == 0 {
		return "", "", 0, false
	}
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		inRuntime := strings.HasPrefix(fr.Function, "runtime.")
		inApierr := strings.Contains(fr.Function, "/internal/apierr.")
		if !inRuntime && !inApierr && !skipFrame(fr.Function) {
			return fr.Function, fr.File, fr.Line, true
		}
		if !more {
			break
		}
	}
	return "", "", 0, false
}

// classifyTypes reports the first non-wrapper type in the chain and the root type
func classifyTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if t := reflect.TypeOf(e); t != nil {
			u := t
			for u.Kind() == reflect.Ptr {
				u = u.Elem()
			}
			if u.PkgPath() == "fmt" && u.Name() == "wrapError" {
				continue
			}
			surface = t.String()
			break
		}
	}

	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}

	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
	}
	if last != nil {
		root = fmt.Sprintf("%T", last)
	}

	return surface, root
}
