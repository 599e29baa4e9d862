package httpmw

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

type logEntry struct {
	level  string
	msg    string
	err    error
	fields map[string]any
}

// recLogger records every entry with the fields bound through With.
type recLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	bound   []any
}

func newRecLogger() *recLogger {
	return &recLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recLogger) With(kv ...any) log.Logger {
	bound := append(append([]any{}, l.bound...), kv...)
	return &recLogger{mu: l.mu, entries: l.entries, bound: bound}
}

func (l *recLogger) record(level string, err error, msg string, kv []any) {
	fields := map[string]any{}
	all := append(append([]any{}, l.bound...), kv...)
	for i := 0; i+1 < len(all); i += 2 {
		if k, ok := all[i].(string); ok {
			fields[k] = all[i+1]
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, err: err, fields: fields})
}

func (l *recLogger) Debug(_ context.Context, msg string, kv ...any) { l.record("debug", nil, msg, kv) }
func (l *recLogger) Info(_ context.Context, msg string, kv ...any)  { l.record("info", nil, msg, kv) }
func (l *recLogger) Warn(_ context.Context, msg string, kv ...any)  { l.record("warn", nil, msg, kv) }
func (l *recLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	l.record("error", err, msg, kv)
}
func (l *recLogger) Sync() error { return nil }

func (l *recLogger) all() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry{}, *l.entries...)
}

func (l *recLogger) byMsg(msg string) []logEntry {
	var out []logEntry
	for _, e := range l.all() {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apierr.Envelope {
	t.Helper()
	var env apierr.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return env
}
