package swagger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
)

// Error constants.
var (
	ErrServe = errors.New("swagger serve failed")
)

// Route is one documented operation.
type Route struct {
	Method  string
	Path    string
	Summary string
}

var methodOrder = map[string]int{"get": 0, "post": 1, "put": 2, "patch": 3, "delete": 4}

// Routes lists the operations of the embedded OpenAPI document, ordered by path then method.
func Routes() ([]Route, error) {
	doc, err := yaml.Parser().Unmarshal(OpenAPI)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServe, err)
	}
	paths, ok := doc["paths"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: openapi document has no paths", ErrServe)
	}

	var routes []Route
	for path, item := range paths {
		ops, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for method, op := range ops {
			if _, known := methodOrder[method]; !known {
				continue
			}
			summary := ""
			if m, ok := op.(map[string]interface{}); ok {
				summary, _ = m["summary"].(string)
			}
			routes = append(routes, Route{Method: strings.ToUpper(method), Path: path, Summary: summary})
		}
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return methodOrder[strings.ToLower(routes[i].Method)] < methodOrder[strings.ToLower(routes[j].Method)]
	})
	return routes, nil
}

// Register attaches the API docs page and the OpenAPI document to mux.
// Routes:
//
//	GET /api-docs      -> HTML index of the documented operations
//	GET /openapi.yaml  -> Embedded OpenAPI document
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	page, pageErr := renderIndex()

	mux.HandleFunc("/api-docs", func(w http.ResponseWriter, r *http.Request) {
		if pageErr != nil {
			http.Error(w, pageErr.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}

func renderIndex() ([]byte, error) {
	routes, err := Routes()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, routes); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServe, err)
	}
	return buf.Bytes(), nil
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>pitchvision API</title>
    <style>
      body{font-family:sans-serif;margin:2rem}
      td{padding:.25rem .75rem}
      .method{font-weight:bold;font-family:monospace}
    </style>
  </head>
  <body>
    <h1>pitchvision API</h1>
    <p>Full document: <a href="/openapi.yaml">/openapi.yaml</a></p>
    <table id="routes">
      {{- range .}}
      <tr><td class="method">{{.Method}}</td><td><code>{{.Path}}</code></td><td>{{.Summary}}</td></tr>
      {{- end}}
    </table>
  </body>
</html>`))
