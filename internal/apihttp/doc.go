// Package apihttp holds the public API routes: the root welcome document,
// health and readiness, and the paginated route index.
//
// Handlers return errors instead of writing error bodies; the responder in
// internal/apierr turns them into the uniform envelope.
package apihttp
