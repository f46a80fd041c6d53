package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/checkrun/internal/logstore"
	"github.com/dwsmith1983/checkrun/internal/server/handlers"
	"github.com/dwsmith1983/checkrun/internal/workflow"
)

func (s *Server) registerRoutes(r chi.Router, reg *workflow.Registry, logs *logstore.Store) {
	h := handlers.New(s.orch, s.provider, reg, logs)

	r.Get("/healthz", h.Health)

	r.Route("/v1", func(r chi.Router) {
		// Events
		r.Post("/events", h.SubmitEvent)
		r.Get("/events", h.ListEvents)

		// Runs
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{runID}", h.GetRun)
		r.Get("/runs/{runID}/jobs/{job}/log", h.GetJobLog)

		// Workflows
		r.Get("/workflows", h.ListWorkflows)
		r.Get("/workflows/{name}", h.GetWorkflow)
	})
}
