package server

import (
	"net/http"
	"strings"

	"bossspawner/internal/auth"
)

type RouteDoc struct {
	Method      string `json:"method"`
	Pattern     string `json:"pattern"`
	Summary     string `json:"summary,omitempty"`
	ExampleBody string `json:"example_body,omitempty"`
	Admin       bool   `json:"admin"`
}

type RouteRegistry struct {
	routes []RouteDoc
}

func (rr *RouteRegistry) Add(doc RouteDoc) {
	rr.routes = append(rr.routes, doc)
}

func (rr *RouteRegistry) List() []RouteDoc {
	out := make([]RouteDoc, len(rr.routes))
	copy(out, rr.routes)
	return out
}

func splitPattern(methodAndPattern string) (string, string) {
	parts := strings.SplitN(methodAndPattern, " ", 2)
	method, pattern := parts[0], ""
	if len(parts) == 2 {
		pattern = parts[1]
	}
	return method, pattern
}

// Handle registers a public route.
func Handle(mux *http.ServeMux, rr *RouteRegistry, methodAndPattern, summary, exampleBody string, h http.HandlerFunc) {
	method, pattern := splitPattern(methodAndPattern)
	rr.Add(RouteDoc{Method: method, Pattern: pattern, Summary: summary, ExampleBody: exampleBody})
	mux.HandleFunc(methodAndPattern, h)
}

// HandleAdmin registers a route behind the admin check.
func HandleAdmin(mux *http.ServeMux, rr *RouteRegistry, check auth.Check, methodAndPattern, summary, exampleBody string, h http.HandlerFunc) {
	method, pattern := splitPattern(methodAndPattern)
	rr.Add(RouteDoc{Method: method, Pattern: pattern, Summary: summary, ExampleBody: exampleBody, Admin: true})
	mux.Handle(methodAndPattern, auth.Require(check, h))
}
