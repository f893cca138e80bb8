// Package swagger serves the API description and a ReDoc viewer for it.
package swagger

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
)

// OpenAPI is the API description in YAML.
//
//go:embed openapi.yaml
var OpenAPI []byte

// openAPIJSON renders OpenAPI as JSON once, for tools that do not read YAML.
var openAPIJSON = sync.OnceValues(func() ([]byte, error) {
	doc, err := yaml.Parser().Unmarshal(OpenAPI)
	if err != nil {
		return nil, fmt.Errorf("swagger: parse openapi.yaml: %w", err)
	}
	return json.Marshal(doc)
})

// Register attaches the docs routes to mux:
//
//	GET /api-docs      ReDoc viewer
//	GET /openapi.yaml  API description
//	GET /openapi.json  the same, as JSON
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("swagger: nil mux")
	}
	mux.HandleFunc("GET /api-docs", serveIndex)
	mux.HandleFunc("GET /openapi.yaml", serveYAML)
	mux.HandleFunc("GET /openapi.json", serveJSON)
}

func serveIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func serveYAML(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(OpenAPI)
}

func serveJSON(w http.ResponseWriter, _ *http.Request) {
	body, err := openAPIJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

const indexHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>CadenceCoach API</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
    <script>Redoc.init('/openapi.json', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`
