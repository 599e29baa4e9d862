package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-api/internal/health"
)

type Options struct {
	// Host defaults to all interfaces; the network guard still refuses
	// public peers.
	Host        string
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// OnPanic is called for every recovered handler panic (metrics).
	OnPanic func()
}
