// Package handlers implements HTTP request handlers for the checkrun API.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dwsmith1983/checkrun/internal/logstore"
	"github.com/dwsmith1983/checkrun/internal/orchestrator"
	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/internal/workflow"
)

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	orch     *orchestrator.Orchestrator
	provider provider.Provider
	registry *workflow.Registry
	logs     *logstore.Store
	logger   *slog.Logger
}

// New creates a new Handlers instance.
func New(orch *orchestrator.Orchestrator, prov provider.Provider, reg *workflow.Registry, logs *logstore.Store) *Handlers {
	return &Handlers{
		orch:     orch,
		provider: prov,
		registry: reg,
		logs:     logs,
		logger:   slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// queryLimit parses the ?limit= query parameter with a default.
func queryLimit(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}
