package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"pluglic/internal/config"
	apperrors "pluglic/internal/errors"
	"pluglic/internal/infrastructure"
)

// ConfigHandler exposes the process-wide licensing settings. Updates
// rebuild the manager behind the facade rather than mutating shared
// state under running operations.
type ConfigHandler struct {
	current  func() config.LicensingConfig
	apply    func(config.LicensingConfig) error
	logger   *slog.Logger
	validate *validator.Validate
}

// NewConfigHandler creates a config handler. current reads the settings
// in effect; apply installs new ones.
func NewConfigHandler(current func() config.LicensingConfig, apply func(config.LicensingConfig) error, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{
		current:  current,
		apply:    apply,
		logger:   logger.With(slog.String("handler", "config")),
		validate: validator.New(),
	}
}

// ConfigUpdateRequest carries partial licensing settings; absent fields
// keep their current values.
type ConfigUpdateRequest struct {
	Environment    *string `json:"environment,omitempty"`
	CacheTTL       *string `json:"cache_ttl,omitempty"`
	TimeoutSeconds *int    `json:"timeout_seconds,omitempty"`
	Network        *bool   `json:"network,omitempty"`
}

// Bind implements the render.Binder interface.
func (c *ConfigUpdateRequest) Bind(r *http.Request) error {
	return nil
}

// Routes returns a chi router for config endpoints.
func (h *ConfigHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Put("/", h.Update)
	return r
}

// Get handles GET /api/config.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg := h.current()
	render.JSON(w, r, map[string]any{
		"environment":     string(cfg.ResolvedEnvironment()),
		"cache_ttl":       cfg.CacheTTL.String(),
		"timeout_seconds": int(cfg.RemoteTimeout / time.Second),
		"network":         cfg.NetworkScope,
	})
}

// Update handles PUT /api/config.
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	data := &ConfigUpdateRequest{}
	if err := render.Bind(r, data); err != nil {
		_ = render.Render(w, r, apperrors.NewInvalidRequestError(err.Error(), r.URL.Path, traceID))
		return
	}
	if err := h.validate.Struct(data); err != nil {
		_ = render.Render(w, r, apperrors.NewInvalidRequestError(err.Error(), r.URL.Path, traceID))
		return
	}

	cfg := h.current()

	if data.Environment != nil {
		// Unknown environments silently resolve to production.
		cfg.Environment = string(config.ResolveEnvironment(*data.Environment))
	}
	if data.CacheTTL != nil {
		ttl, err := time.ParseDuration(*data.CacheTTL)
		if err != nil || ttl <= 0 {
			_ = render.Render(w, r, apperrors.NewInvalidRequestError(
				"cache_ttl must be a positive duration such as \"12h\"", r.URL.Path, traceID))
			return
		}
		cfg.CacheTTL = ttl
	}
	if data.TimeoutSeconds != nil {
		// Struct-tag validation cannot tell a supplied 0 from an absent
		// field, and a zero timeout would disable the remote bound.
		if *data.TimeoutSeconds < 1 || *data.TimeoutSeconds > 300 {
			_ = render.Render(w, r, apperrors.NewInvalidRequestError(
				"timeout_seconds must be between 1 and 300", r.URL.Path, traceID))
			return
		}
		cfg.RemoteTimeout = time.Duration(*data.TimeoutSeconds) * time.Second
	}
	if data.Network != nil {
		cfg.NetworkScope = *data.Network
	}

	if err := h.apply(cfg); err != nil {
		_ = render.Render(w, r, apperrors.NewInternalError(err.Error(), r.URL.Path, traceID))
		return
	}

	h.logger.InfoContext(ctx, "licensing configuration updated",
		slog.String("environment", cfg.Environment),
		slog.Duration("cache_ttl", cfg.CacheTTL),
		slog.Duration("remote_timeout", cfg.RemoteTimeout),
		slog.Bool("network", cfg.NetworkScope))

	render.JSON(w, r, map[string]any{
		"success":         true,
		"environment":     string(cfg.ResolvedEnvironment()),
		"cache_ttl":       cfg.CacheTTL.String(),
		"timeout_seconds": int(cfg.RemoteTimeout / time.Second),
		"network":         cfg.NetworkScope,
		"trace_id":        traceID,
	})
}
