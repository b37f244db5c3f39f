package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "pluglic/internal/errors"
	"pluglic/internal/infrastructure"
	"pluglic/internal/license"
)

// slugPattern matches plugin slugs: lowercase alphanumerics separated by
// single dashes, e.g. "acme-plugin".
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// LicenseHandler handles license-related HTTP requests.
type LicenseHandler struct {
	service  func() LicenseService
	logger   *slog.Logger
	validate *validator.Validate
}

// NewLicenseHandler creates a license handler. service is a provider
// rather than a fixed instance because a configuration update replaces
// the manager behind the facade.
func NewLicenseHandler(service func() LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:  service,
		logger:   logger.With(slog.String("handler", "license")),
		validate: validator.New(),
	}
}

// ActivateRequest is the activation request payload.
type ActivateRequest struct {
	LicenseID string         `json:"license_id,omitempty" validate:"omitempty,min=1,max=128"`
	Args      map[string]any `json:"args,omitempty"`
}

// Bind implements the render.Binder interface.
func (a *ActivateRequest) Bind(r *http.Request) error {
	return nil
}

// StoreLicenseIDRequest is the payload for storing a license id.
type StoreLicenseIDRequest struct {
	LicenseID string `json:"license_id" validate:"required,min=1,max=128"`
}

// Bind implements the render.Binder interface.
func (s *StoreLicenseIDRequest) Bind(r *http.Request) error {
	return nil
}

// Routes returns a chi router for license endpoints.
func (h *LicenseHandler) Routes(activateLimiter func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/{slug}", func(r chi.Router) {
		if activateLimiter != nil {
			r.With(activateLimiter).Post("/activate", h.Activate)
		} else {
			r.Post("/activate", h.Activate)
		}
		r.Post("/deactivate", h.Deactivate)
		r.Get("/check", h.Check)
		r.Put("/id", h.StoreLicenseID)
		r.Get("/id", h.GetLicenseID)
		r.Delete("/id", h.DeleteLicenseID)
	})

	return r
}

// Activate handles POST /api/license/{slug}/activate.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.activate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/{slug}/activate"),
		),
	)
	defer span.End()

	slug, ok := h.pluginSlug(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("license.plugin", slug))

	data := &ActivateRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		_ = render.Render(w, r, apperrors.NewInvalidRequestError(err.Error(), r.URL.Path, traceID))
		return
	}
	if err := h.validate.Struct(data); err != nil {
		span.RecordError(err)
		_ = render.Render(w, r, apperrors.NewInvalidRequestError(err.Error(), r.URL.Path, traceID))
		return
	}

	activated, err := h.service().Activate(ctx, slug, data.LicenseID, data.Args)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("license.result", "failure"))
		h.handleError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("license.result", "success"))

	h.logger.InfoContext(ctx, "license activated via facade",
		slog.String("plugin", slug))

	render.JSON(w, r, map[string]any{
		"success":   activated,
		"plugin":    slug,
		"trace_id":  traceID,
		"timestamp": time.Now().UTC(),
	})
}

// Deactivate handles POST /api/license/{slug}/deactivate.
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	slug, ok := h.pluginSlug(w, r)
	if !ok {
		return
	}

	deactivated, err := h.service().Deactivate(ctx, slug)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license deactivated via facade",
		slog.String("plugin", slug))

	render.JSON(w, r, map[string]any{
		"success":   deactivated,
		"plugin":    slug,
		"trace_id":  traceID,
		"timestamp": time.Now().UTC(),
	})
}

// Check handles GET /api/license/{slug}/check.
func (h *LicenseHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.check",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/{slug}/check"),
		),
	)
	defer span.End()

	slug, ok := h.pluginSlug(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	span.SetAttributes(
		attribute.String("license.plugin", slug),
		attribute.Bool("license.force", force),
	)

	valid, err := h.service().Check(ctx, slug, force)
	if err != nil {
		span.RecordError(err)
		h.handleError(w, r, err)
		return
	}
	span.SetAttributes(attribute.Bool("license.valid", valid))

	render.JSON(w, r, map[string]any{
		"plugin":    slug,
		"valid":     valid,
		"forced":    force,
		"trace_id":  traceID,
		"timestamp": time.Now().UTC(),
	})
}

// StoreLicenseID handles PUT /api/license/{slug}/id.
func (h *LicenseHandler) StoreLicenseID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	slug, ok := h.pluginSlug(w, r)
	if !ok {
		return
	}

	data := &StoreLicenseIDRequest{}
	if err := render.Bind(r, data); err != nil {
		_ = render.Render(w, r, apperrors.NewInvalidRequestError(err.Error(), r.URL.Path, traceID))
		return
	}
	if err := h.validate.Struct(data); err != nil {
		_ = render.Render(w, r, apperrors.NewInvalidRequestError(err.Error(), r.URL.Path, traceID))
		return
	}

	if err := h.service().StoreLicenseID(ctx, slug, data.LicenseID); err != nil {
		h.handleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{
		"success":  true,
		"plugin":   slug,
		"trace_id": traceID,
	})
}

// GetLicenseID handles GET /api/license/{slug}/id.
func (h *LicenseHandler) GetLicenseID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	slug, ok := h.pluginSlug(w, r)
	if !ok {
		return
	}

	licenseID, err := h.service().LicenseID(ctx, slug)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{
		"plugin":     slug,
		"license_id": licenseID,
		"trace_id":   traceID,
	})
}

// DeleteLicenseID handles DELETE /api/license/{slug}/id.
func (h *LicenseHandler) DeleteLicenseID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	slug, ok := h.pluginSlug(w, r)
	if !ok {
		return
	}

	if err := h.service().DeleteLicenseID(ctx, slug); err != nil {
		h.handleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{
		"success":  true,
		"plugin":   slug,
		"trace_id": traceID,
	})
}

// pluginSlug extracts and validates the slug URL parameter, rendering an
// invalid-request problem on failure.
func (h *LicenseHandler) pluginSlug(w http.ResponseWriter, r *http.Request) (string, bool) {
	slug := chi.URLParam(r, "slug")
	if slug == "" || len(slug) > 96 || !slugPattern.MatchString(slug) {
		traceID := infrastructure.GetTraceID(r.Context())
		_ = render.Render(w, r, apperrors.NewInvalidRequestError(
			"plugin slug must be lowercase alphanumerics separated by dashes",
			r.URL.Path, traceID))
		return "", false
	}
	return slug, true
}

// handleError translates manager errors into problem responses.
func (h *LicenseHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)
	slug := chi.URLParam(r, "slug")

	h.logger.ErrorContext(ctx, "license request failed",
		slog.String("plugin", slug),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))

	var remoteErr *license.RemoteError
	var transportErr *license.TransportError

	switch {
	case errors.Is(err, license.ErrNoLicense):
		_ = render.Render(w, r, apperrors.NewNoLicenseError(slug, r.URL.Path, traceID))

	case errors.Is(err, license.ErrMalformedResponse):
		_ = render.Render(w, r, apperrors.NewMalformedUpstreamError(err.Error(), r.URL.Path, traceID))

	case errors.As(err, &remoteErr):
		_ = render.Render(w, r, apperrors.NewUpstreamError(remoteErr.StatusCode, remoteErr.Body, r.URL.Path, traceID))

	case errors.As(err, &transportErr), errors.Is(err, context.DeadlineExceeded):
		_ = render.Render(w, r, apperrors.NewUpstreamUnreachableError(err.Error(), r.URL.Path, traceID))

	default:
		_ = render.Render(w, r, apperrors.NewInternalError(err.Error(), r.URL.Path, traceID))
	}
}
