package health

import (
	"context"
	"sync"

	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// Probe is evaluated at request time: nil is OK, an error is the reason
// for failing.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed returns a probe that always passes or always fails with reason.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	err := xerrors.New(orDefault(reason, "unhealthy"))
	return func(context.Context) error { return err }
}

// ShutdownGate marks the process as draining. The zero value is open.
type ShutdownGate struct {
	mu       sync.RWMutex
	draining bool
	reason   string
}

// Set closes the gate; readiness fails with reason ("draining" if empty)
// until Clear.
func (g *ShutdownGate) Set(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.draining, g.reason = true, reason
}

func (g *ShutdownGate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.draining, g.reason = false, ""
}

func (g *ShutdownGate) Draining() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.draining
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		g.mu.RLock()
		draining, reason := g.draining, g.reason
		g.mu.RUnlock()
		if !draining {
			return nil
		}
		return xerrors.New(orDefault(reason, "draining"))
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
