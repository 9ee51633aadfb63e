// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foliostream/folio/internal/api/middleware"
	"github.com/foliostream/folio/internal/ratelimit"
)

// Routes builds the complete handler tree for the main listener.
func (s *Server) Routes() http.Handler {
	r := s.newRouter()
	s.registerPublicRoutes(r)
	s.registerViewerRoutes(r)
	s.registerManagementRoutes(r)
	return r
}

func (s *Server) newRouter() *chi.Mux {
	return middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		EnableSecurityHeaders: true,
		CSP:                   middleware.DefaultCSP,
		EnableMetrics:         true,
		TracingService:        "folio-api",
		EnableLogging:         true,
	})
}

func (s *Server) registerPublicRoutes(r chi.Router) {
	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "folio",
			"version": s.cfg.Version,
		})
	})
}

// registerViewerRoutes mounts the unauthenticated browser surface. Every
// route passes the token-bucket limiter with its own scope before any work.
func (s *Server) registerViewerRoutes(r chi.Router) {
	r.Route("/viewer/{sessionID}", func(vr chi.Router) {
		vr.With(s.scopeLimit(ratelimit.ScopeViewer)).Get("/", s.handleViewerDocument)
		vr.With(s.scopeLimit(ratelimit.ScopeBridge)).Get("/bridge", s.handleBridge)
		vr.With(s.scopeLimit(ratelimit.ScopePage)).Get("/page/{page}", s.handleViewerPage)
	})
}

func (s *Server) registerManagementRoutes(r chi.Router) {
	r.Route("/api/v1", func(ar chi.Router) {
		ar.Use(s.authMiddleware)
		ar.Use(middleware.APIRateLimit(s.cfg.Server.RateLimitRPM))

		ar.Post("/sessions", s.handleCreateSession)
		ar.Get("/sessions", s.handleListSessions)
		ar.Route("/sessions/{sessionID}", func(sr chi.Router) {
			sr.Get("/", s.handleGetSession)
			sr.Delete("/", s.handleDeleteSession)
			sr.Post("/page", s.handleNavigatePage)
			sr.Post("/zoom", s.handleSetZoom)
			sr.Post("/reinitialize", s.handleReinitialize)
			sr.Get("/history", s.handleSessionHistory)
		})
	})
}

// scopeLimit enforces the viewer token buckets. Rejections are counted by
// the limiter itself, the middleware only shapes the response.
func (s *Server) scopeLimit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.limiter.Allow(ratelimit.GetClientIP(r), scope) {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "rate_limit_exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
