package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// ListRuns returns recent runs, optionally filtered by workflow.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.provider.ListRuns(r.Context(), r.URL.Query().Get("workflow"), queryLimit(r, 20))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []types.Run{}
	}
	_ = json.NewEncoder(w).Encode(runs)
}

// GetRun returns one run by ID.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.provider.GetRun(r.Context(), runID)
	if errors.Is(err, provider.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "run not found", nil)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to fetch run", err)
		return
	}
	_ = json.NewEncoder(w).Encode(run)
}

// GetJobLog returns the captured step output of one job as plain text.
func (h *Handlers) GetJobLog(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	jobName := chi.URLParam(r, "job")

	run, err := h.provider.GetRun(r.Context(), runID)
	if errors.Is(err, provider.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "run not found", nil)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to fetch run", err)
		return
	}

	var job *types.JobState
	for i := range run.Jobs {
		if run.Jobs[i].Name == jobName {
			job = &run.Jobs[i]
			break
		}
	}
	if job == nil {
		h.writeError(w, http.StatusNotFound, "job not found", nil)
		return
	}
	if h.logs == nil {
		h.writeError(w, http.StatusNotFound, "log storage disabled", nil)
		return
	}

	var buf bytes.Buffer
	for _, step := range job.Steps {
		if step.LogPath == "" {
			continue
		}
		data, err := h.logs.Read(step.LogPath)
		if err != nil {
			h.logger.Warn("failed to read step log", "run", runID, "step", step.Name, "error", err)
			continue
		}
		fmt.Fprintf(&buf, "=== %s (%s) ===\n", step.Name, step.Status)
		buf.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
