package docs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"html/template"
)

//go:embed templates/*.html
var embedded embed.FS

// pages holds swagger.html and redoc.html.
var pages = template.Must(template.ParseFS(embedded, "templates/*.html"))

// etag is a strong validator for a rendered body.
func etag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}
