package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

// LevelCritical sits above slog.LevelError; records at this level are
// emitted without terminating the process.
const LevelCritical = slog.Level(12)

type Options struct {
	App               string
	Version           string
	Environment       string
	Commit            string
	BuildId           string
	Level             slog.Level
	StacktraceLevel   slog.Level
	JsonFormat        bool
	MaxErrorLinks     int
	IncludeErrorLinks bool
	Writer            io.Writer
}

func New(opts Options) (Logger, error) { return newZerolog(opts) }

// ParseLevel accepts the level names used in LOG_LEVEL (DEBUG, INFO,
// WARNING, ERROR, CRITICAL) in any case. WARN is accepted as an alias.
func ParseLevel(s string) (slog.Level, error) {
	x := strings.ToUpper(strings.TrimSpace(s))
	switch x {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown log level %s (valid levels are DEBUG|INFO|WARNING|ERROR|CRITICAL)", s)
	}
}

// LevelName returns the canonical upper-case name for lvl.
func LevelName(lvl slog.Level) string {
	switch {
	case lvl < slog.LevelInfo:
		return "DEBUG"
	case lvl < slog.LevelWarn:
		return "INFO"
	case lvl < slog.LevelError:
		return "WARNING"
	case lvl < LevelCritical:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}
