package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

// SubmitEvent accepts a change event, evaluates every workflow's trigger rules
// against it, and executes the matching workflows. The response carries the
// terminal runs; mismatches produce no run.
func (h *Handlers) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var event types.ChangeEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid event payload", err)
		return
	}

	switch event.Kind {
	case types.ChangePush, types.ChangePullRequest:
	default:
		h.writeError(w, http.StatusBadRequest, "unknown event kind", nil)
		return
	}
	if event.Branch == "" {
		h.writeError(w, http.StatusBadRequest, "event branch is required", nil)
		return
	}

	runs, err := h.orch.HandleEvent(r.Context(), event)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "event handling failed", err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"matched": len(runs),
		"runs":    runs,
	})
}

// ListEvents returns recent audit events, optionally filtered by workflow.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.provider.ListEvents(r.Context(), r.URL.Query().Get("workflow"), queryLimit(r, 50))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list events", err)
		return
	}
	if events == nil {
		events = []types.Event{}
	}
	_ = json.NewEncoder(w).Encode(events)
}
