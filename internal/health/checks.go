package health

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// StatusOK is reported for a check that passed.
const StatusOK = "ok"

// DefaultCheckTimeout bounds each check when Checks.Timeout is zero.
const DefaultCheckTimeout = 2 * time.Second

// Report is the outcome of one readiness evaluation. Checks maps each
// check name to StatusOK or the failure reason.
type Report struct {
	Ready  bool
	Checks map[string]string
}

// Checks is a registry of named readiness probes. Registration happens at
// startup; Run may be called concurrently from any number of requests.
type Checks struct {
	Timeout time.Duration
	Gate    *ShutdownGate

	mu     sync.RWMutex
	probes map[string]Probe
}

func NewChecks(gate *ShutdownGate) *Checks {
	return &Checks{Gate: gate, probes: map[string]Probe{}}
}

// Add registers p under name, replacing any earlier probe with that name.
func (c *Checks) Add(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probes == nil {
		c.probes = map[string]Probe{}
	}
	c.probes[name] = p
}

func (c *Checks) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.probes))
}

// Run evaluates every registered probe in parallel, each bounded by the
// timeout. A closed shutdown gate makes the report not ready and adds a
// "shutdown" entry.
func (c *Checks) Run(ctx context.Context) Report {
	if c == nil {
		return Report{Ready: true, Checks: map[string]string{}}
	}

	c.mu.RLock()
	probes := maps.Clone(c.probes)
	c.mu.RUnlock()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	rep := Report{Ready: true, Checks: make(map[string]string, len(probes))}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := runOne(ctx, p, timeout)
			mu.Lock()
			defer mu.Unlock()
			rep.Checks[name] = status
			if status != StatusOK {
				rep.Ready = false
			}
		}()
	}
	wg.Wait()

	if c.Gate != nil {
		if err := c.Gate.Probe().Check(ctx); err != nil {
			rep.Ready = false
			rep.Checks["shutdown"] = err.Error()
		}
	}
	return rep
}

func runOne(ctx context.Context, p Probe, timeout time.Duration) string {
	if p == nil {
		return StatusOK
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Check(cctx) }()

	select {
	case err := <-done:
		if err != nil {
			return err.Error()
		}
		return StatusOK
	case <-cctx.Done():
		return "timeout after " + timeout.String()
	}
}

// Probe exposes the whole registry as a single probe for the admin
// readiness endpoint.
func (c *Checks) Probe() CheckFunc {
	return func(ctx context.Context) error {
		rep := c.Run(ctx)
		if rep.Ready {
			return nil
		}
		for _, name := range slices.Sorted(maps.Keys(rep.Checks)) {
			if s := rep.Checks[name]; s != StatusOK {
				return &checkError{name: name, reason: s}
			}
		}
		return nil
	}
}

type checkError struct{ name, reason string }

func (e *checkError) Error() string { return e.name + ": " + e.reason }
