package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/hub", func(r chi.Router) {
			r.Get("/", s.handleGetHub)
			r.Post("/actions", s.handleHubCommand)
		})

		r.Route("/ports", func(r chi.Router) {
			r.Get("/", s.handleListPorts)
			r.Route("/{port}", func(r chi.Router) {
				r.Get("/", s.handleGetPort)
				r.Post("/commands", s.handlePortCommand)
			})
		})

		r.Get("/catalog/ports", s.handleCatalogPorts)
		r.Get("/commands", s.handleListCommands)

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// wsPath is the WebSocket route below /api/v1. Default: /ws.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !s.session.Connected() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"version":       s.version,
		"hub_id":        s.hubID,
		"hub_connected": s.session.Connected(),
	})
}
