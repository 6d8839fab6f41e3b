package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w)
	})

	// Approval mode
	r.Route("/mode", func(r chi.Router) {
		r.Get("/", s.getMode)
		r.Put("/", s.setMode)
		r.Post("/cycle", s.cycleMode)
	})

	// Slash commands
	r.Post("/command", s.runCommand)

	// Policy
	r.Post("/check", s.check)
	r.Post("/decide", s.decide)
	r.Get("/rules", s.listRules)

	// Pending confirmations
	r.Route("/confirmation", func(r chi.Router) {
		r.Get("/", s.listConfirmations)
		r.Get("/{id}", s.getConfirmation)
		r.Post("/{id}", s.answerConfirmation)
	})

	// Event streaming (SSE)
	r.Get("/event", s.events)
}
