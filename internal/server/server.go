// Package server implements the checkrun HTTP API server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/checkrun/internal/logstore"
	"github.com/dwsmith1983/checkrun/internal/orchestrator"
	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/internal/workflow"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

const defaultMaxRequestBody = 1 << 20 // 1 MiB

// Server is the checkrun HTTP API server.
type Server struct {
	orch     *orchestrator.Orchestrator
	provider provider.Provider
	router   chi.Router
	addr     string
	srv      *http.Server
	logger   *slog.Logger
}

// New creates a new HTTP server.
func New(cfg types.ServerConfig, orch *orchestrator.Orchestrator, prov provider.Provider, reg *workflow.Registry, logs *logstore.Store) *Server {
	s := &Server{
		orch:     orch,
		provider: prov,
		addr:     cfg.Addr,
		logger:   slog.Default(),
	}

	maxBody := cfg.MaxRequestBody
	if maxBody <= 0 {
		maxBody = defaultMaxRequestBody
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(APIKeyMiddleware(cfg.APIKey))
	r.Use(MaxBodyMiddleware(maxBody))
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	s.router = r
	s.registerRoutes(r, reg, logs)
	return s
}

// Handler exposes the router (useful for testing).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("http server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
