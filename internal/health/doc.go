// Package health provides composable probes and the readiness registry.
//
// Probes combine with [All] (AND), [Any] (OR) and [Fixed] (static).
// [CheckFunc] adapts a plain function into a [Probe].
//
// [Checks] holds the named readiness checks reported by the API's /ready
// endpoint and the admin /-/ready endpoint. [ShutdownGate] flips both to
// not ready the moment shutdown begins so load balancers stop sending
// traffic before in-flight requests are drained.
package health
