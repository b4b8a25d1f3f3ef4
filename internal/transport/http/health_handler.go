package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"dicommart/internal/config"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	ActiveRun string    `json:"active_run,omitempty"`
	Time      time.Time `json:"time"`
}

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	runs RunService
}

// NewHealthHandler creates a health handler. runs may be nil.
func NewHealthHandler(runs RunService) *HealthHandler {
	return &HealthHandler{runs: runs}
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: config.AppVersion,
		Time:    time.Now().UTC(),
	}
	if h.runs != nil {
		if id, ok := h.runs.Active(); ok {
			resp.ActiveRun = id
		}
	}
	render.JSON(w, r, resp)
}
