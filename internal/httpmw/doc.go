// Package httpmw holds the request pipeline stages for the API server.
//
// httpserver.NewHandler composes them with Chain in a fixed order, first
// stage outermost: request id, tracing, access log (which also echoes
// the trace ids), security headers, metrics, panic recovery, host guard,
// CORS, body limit and finally the chi router. The host guard runs before CORS
// so a rejected host never gets CORS headers, and CORS answers preflights
// before the router sees them.
//
// Every stage that rejects a request does so through apierr.Responder, so
// rejections carry the same envelope and request id as handler errors.
// Query strings, user agents and other client supplied headers are kept
// out of the access log.
package httpmw
