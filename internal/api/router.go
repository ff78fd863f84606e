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
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Hub endpoints
		r.Route("/hubs", func(r chi.Router) {
			r.Get("/", s.handleListHubs)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetHub)
				r.Delete("/", s.handleDeprovisionHub)
				r.Get("/sensors", s.handleListSensors)
				r.Get("/events", s.handleListEvents)

				r.Route("/commands", func(r chi.Router) {
					r.Get("/", s.handleListCommands)
					r.Post("/", s.handleDispatchCommand)
					r.Get("/{commandID}", s.handleGetCommand)
				})
			})
		})

		// Broadcast commands reach every hub; no ack tracking
		r.Post("/broadcast", s.handleBroadcast)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
