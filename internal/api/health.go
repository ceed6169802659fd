package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/nomisma/internal/model"
)

// healthBody is the exact liveness response.
const healthBody = `{"status":"healthy"}`

// Health handles GET /health. The console is up if it can answer.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(healthBody)); err != nil {
		slog.Error("unable to write health response", "error", err)
	}
}

// HealthChecker checks the collection backend.
type HealthChecker interface {
	Health(ctx context.Context) (*model.Health, error)
}

// BackendHealthHandler reports whether the collection backend is reachable.
type BackendHealthHandler struct {
	Backend HealthChecker
}

// Check handles GET /api/health/backend.
func (h *BackendHealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Backend.Health(ctx); err != nil {
		slog.Warn("backend health check failed", "error", err)
		jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}
