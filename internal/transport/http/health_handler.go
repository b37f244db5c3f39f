package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"pluglic/internal/config"
	"pluglic/internal/infrastructure"
	"pluglic/internal/license"
)

// HealthHandler reports liveness and basic runtime detail.
type HealthHandler struct {
	environment func() config.Environment
	cacheStats  func() license.CacheStats
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(environment func() config.Environment, cacheStats func() license.CacheStats) *HealthHandler {
	return &HealthHandler{environment: environment, cacheStats: cacheStats}
}

// Health handles GET /healthz.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":      "ok",
		"service":     infrastructure.ServiceName,
		"version":     infrastructure.ServiceVersion,
		"environment": string(h.environment()),
		"cache":       h.cacheStats(),
		"timestamp":   time.Now().UTC(),
	})
}
