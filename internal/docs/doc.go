// Package docs builds the OpenAPI 3.1 description of the public API once
// at startup and serves it as JSON and YAML, together with Swagger UI and
// ReDoc pages that render it.
package docs
