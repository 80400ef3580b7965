package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIPrefix is the mount point of every versioned resource
const APIPrefix = "/api/v1"

// Route describes one mounted endpoint
type Route struct {
	Method string
	Path   string
}

// resource collects the endpoints of one API resource. The chain runs
// before every endpoint handler.
type resource struct {
	prefix    string
	chain     []gin.HandlerFunc
	endpoints []endpoint
}

type endpoint struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

func newResource(prefix string, chain ...gin.HandlerFunc) *resource {
	return &resource{prefix: prefix, chain: chain}
}

func (r *resource) handle(method, path string, handlers ...gin.HandlerFunc) {
	r.endpoints = append(r.endpoints, endpoint{method: method, path: path, handlers: handlers})
}

func (r *resource) get(path string, handlers ...gin.HandlerFunc) {
	r.handle(http.MethodGet, path, handlers...)
}

func (r *resource) post(path string, handlers ...gin.HandlerFunc) {
	r.handle(http.MethodPost, path, handlers...)
}

func (r *resource) put(path string, handlers ...gin.HandlerFunc) {
	r.handle(http.MethodPut, path, handlers...)
}

// mount attaches resources under APIPrefix and returns what it mounted
func mount(engine *gin.Engine, resources ...*resource) []Route {
	api := engine.Group(APIPrefix)
	var mounted []Route
	for _, res := range resources {
		group := api.Group(res.prefix, res.chain...)
		for _, ep := range res.endpoints {
			group.Handle(ep.method, ep.path, ep.handlers...)
			mounted = append(mounted, Route{Method: ep.method, Path: joinPath(group.BasePath(), ep.path)})
		}
	}
	return mounted
}

func joinPath(base, path string) string {
	if path == "" {
		return base
	}
	return base + path
}
