// Package errors provides the HTTP error vocabulary of the service:
// RFC 7807 problem details rendered through go-chi/render.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface.
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions into the problem document.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error.
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details.
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// NewNoLicenseError describes a request for a plugin with no registered
// license id.
func NewNoLicenseError(slug, instance, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusNotFound,
		"/errors/no-license",
		"No License Found",
		"No license id is registered for this plugin. Store a license id or supply one during activation.",
		instance,
	).WithExtension("plugin", slug).
		WithExtension("trace_id", traceID)
}

// NewMalformedUpstreamError describes a licensing service response that
// violated its contract.
func NewMalformedUpstreamError(detail, instance, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusBadGateway,
		"/errors/malformed-upstream-response",
		"Malformed Licensing Response",
		detail,
		instance,
	).WithExtension("trace_id", traceID)
}

// NewUpstreamError describes a non-200 response from the licensing
// service; the upstream status and decoded body travel as extensions.
func NewUpstreamError(upstreamStatus int, upstreamBody map[string]any, instance, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusBadGateway,
		"/errors/upstream-failure",
		"Licensing Service Error",
		"The licensing service rejected the request.",
		instance,
	).WithExtension("upstream_status", upstreamStatus).
		WithExtension("upstream_body", upstreamBody).
		WithExtension("trace_id", traceID)
}

// NewUpstreamUnreachableError describes a transport failure before any
// response was received.
func NewUpstreamUnreachableError(detail, instance, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusServiceUnavailable,
		"/errors/upstream-unreachable",
		"Licensing Service Unreachable",
		detail,
		instance,
	).WithExtension("trace_id", traceID)
}

// NewInvalidRequestError describes a request that failed validation.
func NewInvalidRequestError(detail, instance, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusBadRequest,
		"/errors/invalid-request",
		"Invalid Request",
		detail,
		instance,
	).WithExtension("trace_id", traceID)
}

// NewInternalError describes an unexpected failure.
func NewInternalError(detail, instance, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusInternalServerError,
		"/errors/internal",
		"Internal Server Error",
		detail,
		instance,
	).WithExtension("trace_id", traceID)
}

// NewRateLimitedError describes a throttled request.
func NewRateLimitedError(instance, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusTooManyRequests,
		"/errors/rate-limited",
		"Too Many Requests",
		"Too many license operations. Please wait before trying again.",
		instance,
	).WithExtension("trace_id", traceID)
}
