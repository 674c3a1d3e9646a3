// Package router binds the HTTP handlers to their paths.
package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultAPIVersion is the path segment after /api/ unless overridden.
const DefaultAPIVersion = "v1"

// Route binds one handler to a method and a path relative to its group.
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// Endpoint names a mounted route, path relative to the API root.
type Endpoint struct {
	Method string
	Path   string
}

func (e Endpoint) String() string {
	return e.Method + " " + e.Path
}

// Group is the routes of one resource under a shared prefix.
type Group struct {
	Prefix     string
	Middleware []gin.HandlerFunc
	Routes     []Route
}

// Endpoints lists the group's routes with the prefix applied.
func (g Group) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(g.Routes))
	for _, r := range g.Routes {
		out = append(out, Endpoint{Method: r.Method, Path: g.Prefix + r.Path})
	}
	return out
}

func (g Group) bind(api *gin.RouterGroup) {
	rg := api.Group(g.Prefix, g.Middleware...)
	for _, r := range g.Routes {
		rg.Handle(r.Method, r.Path, r.Handler)
	}
}

func get(path string, h gin.HandlerFunc) Route   { return Route{http.MethodGet, path, h} }
func post(path string, h gin.HandlerFunc) Route  { return Route{http.MethodPost, path, h} }
func put(path string, h gin.HandlerFunc) Route   { return Route{http.MethodPut, path, h} }
func patch(path string, h gin.HandlerFunc) Route { return Route{http.MethodPatch, path, h} }

// Option adjusts Mount.
type Option func(*mountOptions)

type mountOptions struct {
	version string
}

// WithAPIVersion mounts the API under /api/<version>.
func WithAPIVersion(version string) Option {
	return func(o *mountOptions) {
		o.version = strings.Trim(version, "/")
	}
}

// Bind registers groups under api and returns what it mounted.
func Bind(api *gin.RouterGroup, groups ...Group) []Endpoint {
	var mounted []Endpoint
	for _, g := range groups {
		g.bind(api)
		mounted = append(mounted, g.Endpoints()...)
	}
	return mounted
}
