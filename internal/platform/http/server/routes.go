package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/familyagenda-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/auth"
	httpmw "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/middleware"
)

// RouteGroup defines an endpoint group and whether it needs a bearer token.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups decides bearer gating. Exceptions come from Service.Unprotected.
var routeGroups = []RouteGroup{
	{Name: "api", PathPrefix: "/api", RequiresAuth: true},
	{Name: "worker-script", PathPrefix: "/sw.js", RequiresAuth: false},

	// Web client pages and assets are gated by the session guard instead.
	{Name: "web", PathPrefix: "/", RequiresAuth: false},
}

// GetRouteGroups returns the route group table.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired reports whether path needs a bearer token.
func IsAuthRequired(path string, services []service.Service) bool {
	for _, svc := range services {
		base := ""
		if p := svc.Prefix(); p != "" {
			base = "/" + p
		}
		for _, u := range svc.Unprotected() {
			if pathMatchesPrefix(path, base+u) {
				return false
			}
		}
	}
	for _, rg := range routeGroups {
		if rg.PathPrefix == "/" || pathMatchesPrefix(path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}
	return false
}

// pathMatchesPrefix reports whether path equals prefix or lies beneath it.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// RequestID -> request logger -> access log -> recoverer -> bearer gate
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLogger(s.logger, s.deps.RealIP))
	r.Use(httpmw.AccessLog(s.logger, s.deps.RealIP))
	r.Use(chimw.Recoverer)
	r.Use(auth.NewBearerGate(auth.BearerGateConfig{
		RequireAuth: func(path string) bool { return IsAuthRequired(path, s.services) },
		Log:         s.logger,
	}))

	for _, svc := range s.services {
		mount(r, svc)
	}
	return r
}

func mount(r chi.Router, svc service.Service) {
	var h http.Handler = svc.Handler()
	if p := svc.Prefix(); p != "" {
		r.Mount("/"+p, h)
		return
	}
	r.Mount("/", h)
}
