package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChecks_Empty(t *testing.T) {
	rep := NewChecks(nil).Run(ctx)
	assert.True(t, rep.Ready)
	assert.Empty(t, rep.Checks)
	assert.NotNil(t, rep.Checks)

	var nilChecks *Checks
	assert.True(t, nilChecks.Run(ctx).Ready)
}

func TestChecks_Run(t *testing.T) {
	c := NewChecks(nil)
	c.Add("database", Fixed(true, ""))
	c.Add("redis", Fixed(false, "connection refused"))
	c.Add("placeholder", nil)

	rep := c.Run(ctx)
	assert.False(t, rep.Ready)
	assert.Equal(t, map[string]string{
		"database":    "ok",
		"redis":       "connection refused",
		"placeholder": "ok",
	}, rep.Checks)
	assert.Equal(t, []string{"database", "placeholder", "redis"}, c.Names())
}

func TestChecks_Timeout(t *testing.T) {
	c := NewChecks(nil)
	c.Timeout = 20 * time.Millisecond
	c.Add("slow", CheckFunc(func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	}))

	start := time.Now()
	rep := c.Run(ctx)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, rep.Ready)
	assert.Equal(t, "timeout after 20ms", rep.Checks["slow"])
}

func TestChecks_ShutdownGate(t *testing.T) {
	var g ShutdownGate
	c := NewChecks(&g)
	c.Add("database", Fixed(true, ""))
	assert.True(t, c.Run(ctx).Ready)

	g.Set("")
	rep := c.Run(ctx)
	assert.False(t, rep.Ready)
	assert.Equal(t, "draining", rep.Checks["shutdown"])
	assert.Equal(t, "ok", rep.Checks["database"])
}

func TestChecks_Probe(t *testing.T) {
	c := NewChecks(nil)
	c.Add("b", Fixed(false, "down"))
	c.Add("a", Fixed(false, "also down"))
	assert.EqualError(t, c.Probe().Check(ctx), "a: also down")

	ok := NewChecks(nil)
	ok.Add("a", Fixed(true, ""))
	assert.NoError(t, ok.Probe().Check(ctx))
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name   string
		h      http.HandlerFunc
		status int
		body   string
	}{
		{"healthz ok", HealthzHandler(Fixed(true, "")), 200, "ok\n"},
		{"healthz nil", HealthzHandler(nil), 200, "ok\n"},
		{"healthz failing", HealthzHandler(Fixed(false, "database down")), 503, "database down\n"},
		{"readyz ok", ReadyzHandler(Fixed(true, "")), 200, "ready\n"},
		{"readyz failing", ReadyzHandler(CheckFunc(func(context.Context) error { return errors.New("draining") })), 503, "draining\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/healthy", nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}
