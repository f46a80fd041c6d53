package handlers

import (
	"encoding/json"
	"net/http"
)

// Health reports API liveness and run-store readiness. An unreachable store
// degrades the payload and answers 503 so probes pull the instance before
// run submissions start failing.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok", "store": "ok"}
	code := http.StatusOK

	if err := h.provider.Ping(r.Context()); err != nil {
		h.logger.Warn("health check: store unreachable",
			"requestID", w.Header().Get("X-Request-ID"), "error", err)
		body["status"] = "degraded"
		body["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
