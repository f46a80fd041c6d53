package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// ListWorkflows returns all registered workflow definitions.
func (h *Handlers) ListWorkflows(w http.ResponseWriter, _ *http.Request) {
	workflows := h.registry.List()
	sort.Slice(workflows, func(i, j int) bool { return workflows[i].Name < workflows[j].Name })
	_ = json.NewEncoder(w).Encode(workflows)
}

// GetWorkflow returns one workflow definition by name.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	wf, err := h.registry.Get(name)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "workflow not found", nil)
		return
	}
	_ = json.NewEncoder(w).Encode(wf)
}
