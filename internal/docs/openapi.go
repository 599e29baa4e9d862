package docs

import (
	"net/http"
	"strconv"
)

// Document is the subset of the OpenAPI 3.1 object model this service
// describes.
type Document struct {
	OpenAPI    string              `json:"openapi" yaml:"openapi"`
	Info       Info                `json:"info" yaml:"info"`
	Paths      map[string]PathItem `json:"paths" yaml:"paths"`
	Components Components          `json:"components" yaml:"components"`
}

type Info struct {
	Title       string `json:"title" yaml:"title"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type PathItem struct {
	Get *Operation `json:"get,omitempty" yaml:"get,omitempty"`
}

type Operation struct {
	Summary     string              `json:"summary" yaml:"summary"`
	OperationID string              `json:"operationId" yaml:"operationId"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Responses   map[string]Response `json:"responses" yaml:"responses"`
}

type Parameter struct {
	Name     string `json:"name" yaml:"name"`
	In       string `json:"in" yaml:"in"`
	Required bool   `json:"required" yaml:"required"`
	Schema   Schema `json:"schema" yaml:"schema"`
}

type Response struct {
	Description string               `json:"description" yaml:"description"`
	Content     map[string]MediaType `json:"content,omitempty" yaml:"content,omitempty"`
}

type MediaType struct {
	Schema Schema `json:"schema" yaml:"schema"`
}

// Schema is a JSON Schema fragment.
type Schema map[string]any

type Components struct {
	Schemas map[string]Schema `json:"schemas" yaml:"schemas"`
}

// Description is shown at the top of the rendered docs.
const Description = "Production-ready API scaffold: structured logging, request correlation and a uniform error envelope."

func ref(name string) Schema { return Schema{"$ref": "#/components/schemas/" + name} }

func jsonResponse(desc string, s Schema) Response {
	return Response{Description: desc, Content: map[string]MediaType{"application/json": {Schema: s}}}
}

func errorResponse(status int) Response {
	return jsonResponse(http.StatusText(status), ref("ErrorResponse"))
}

func obj(required []string, props map[string]Schema) Schema {
	return Schema{"type": "object", "required": required, "properties": props}
}

var (
	str     = Schema{"type": "string"}
	integer = Schema{"type": "integer"}
	boolean = Schema{"type": "boolean"}
)

// Build describes the routes registered by apihttp under prefix.
func Build(title, version, prefix string) Document {
	common := map[string]Response{
		strconv.Itoa(http.StatusInternalServerError): errorResponse(http.StatusInternalServerError),
	}
	with := func(extra map[string]Response) map[string]Response {
		out := make(map[string]Response, len(common)+len(extra))
		for k, v := range common {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	return Document{
		OpenAPI: "3.1.0",
		Info:    Info{Title: title, Version: version, Description: Description},
		Paths: map[string]PathItem{
			"/": {Get: &Operation{
				Summary:     "Root",
				OperationID: "root",
				Responses:   with(map[string]Response{"200": jsonResponse("Welcome document", ref("Welcome"))}),
			}},
			prefix + "/health": {Get: &Operation{
				Summary:     "Health check",
				OperationID: "health",
				Tags:        []string{"health"},
				Responses:   with(map[string]Response{"200": jsonResponse("Service is up", ref("HealthStatus"))}),
			}},
			prefix + "/ready": {Get: &Operation{
				Summary:     "Readiness check",
				OperationID: "ready",
				Tags:        []string{"health"},
				Description: "Always 200; `ready` is false when a check failed or shutdown has begun.",
				Responses:   with(map[string]Response{"200": jsonResponse("Readiness report", ref("ReadinessStatus"))}),
			}},
			prefix + "/routes": {Get: &Operation{
				Summary:     "List registered routes",
				OperationID: "listRoutes",
				Tags:        []string{"meta"},
				Parameters: []Parameter{
					{Name: "page", In: "query", Schema: Schema{"type": "integer", "minimum": 1, "maximum": 1000000, "default": 1}},
					{Name: "page_size", In: "query", Schema: Schema{"type": "integer", "minimum": 1, "maximum": 100, "default": 20}},
				},
				Responses: with(map[string]Response{
					"200": jsonResponse("One page of routes", ref("PaginatedRoutes")),
					"422": errorResponse(http.StatusUnprocessableEntity),
				}),
			}},
		},
		Components: Components{Schemas: map[string]Schema{
			"Welcome": obj([]string{"message", "version", "docs", "health"}, map[string]Schema{
				"message": str, "version": str, "docs": str, "health": str,
			}),
			"HealthStatus": obj([]string{"status", "timestamp", "version", "environment"}, map[string]Schema{
				"status":      Schema{"type": "string", "const": "healthy"},
				"timestamp":   Schema{"type": "string", "format": "date-time"},
				"version":     str,
				"environment": str,
			}),
			"ReadinessStatus": obj([]string{"ready", "checks", "timestamp"}, map[string]Schema{
				"ready":     boolean,
				"checks":    Schema{"type": "object", "additionalProperties": boolean},
				"timestamp": Schema{"type": "string", "format": "date-time"},
			}),
			"RouteInfo": obj([]string{"method", "path"}, map[string]Schema{"method": str, "path": str}),
			"Pagination": obj([]string{"page", "page_size", "total_items", "total_pages"}, map[string]Schema{
				"page": integer, "page_size": integer, "total_items": integer, "total_pages": integer,
			}),
			"PaginatedRoutes": obj([]string{"success", "data", "pagination"}, map[string]Schema{
				"success":    boolean,
				"data":       Schema{"type": "array", "items": ref("RouteInfo")},
				"pagination": ref("Pagination"),
			}),
			"Violation": obj([]string{"loc", "msg", "type"}, map[string]Schema{
				"loc":  Schema{"type": "array", "items": str},
				"msg":  str,
				"type": str,
			}),
			"ErrorResponse": obj([]string{"success", "error"}, map[string]Schema{
				"success": Schema{"type": "boolean", "const": false},
				"error": obj([]string{"message", "request_id"}, map[string]Schema{
					"message":    str,
					"request_id": str,
					"details": Schema{"oneOf": []Schema{
						{"type": "object"},
						{"type": "array", "items": ref("Violation")},
						{"type": "null"},
					}},
				}),
			}),
		}},
	}
}
