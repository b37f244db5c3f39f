package license

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"pluglic/internal/config"
	"pluglic/internal/infrastructure"
)

// RemoteClient is the remote licensing service surface the Manager
// consumes. Implementations return the decoded JSON response body; a
// body that fails to decode is returned as an empty map so the manager
// sees a missing required field.
type RemoteClient interface {
	// Activate calls POST /license/{id}/activate with the given payload.
	Activate(ctx context.Context, licenseID string, payload map[string]any) (map[string]any, error)
	// Deactivate calls POST /license/{id}/deactivate with the activation key.
	Deactivate(ctx context.Context, licenseID, activationKey string) (map[string]any, error)
	// Status calls GET /license/{key}/status.
	Status(ctx context.Context, activationKey string) (map[string]any, error)
}

// Client talks to the remote licensing service over HTTPS. TLS
// verification stays on, redirects are restricted to the known licensing
// hosts, and nothing is retried: a failure surfaces directly.
type Client struct {
	http *resty.Client
}

// NewClient creates a remote client for the given environment. The
// timeout bounds each request end to end.
func NewClient(env config.Environment, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(env.BaseURL()).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRedirectPolicy(resty.DomainCheckRedirectPolicy(
			"api.pluglic.com", "staging-api.pluglic.com",
		))

	return &Client{http: c}
}

// NewClientWithBaseURL creates a client against an explicit base URL.
// Used by tests to point at a local server.
func NewClientWithBaseURL(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: c}
}

// Activate calls the remote activation endpoint.
func (c *Client) Activate(ctx context.Context, licenseID string, payload map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, "/license/"+licenseID+"/activate", "activate", payload)
}

// Deactivate calls the remote deactivation endpoint.
func (c *Client) Deactivate(ctx context.Context, licenseID, activationKey string) (map[string]any, error) {
	body := map[string]any{"activation_key": activationKey}
	return c.do(ctx, http.MethodPost, "/license/"+licenseID+"/deactivate", "deactivate", body)
}

// Status calls the remote status endpoint.
func (c *Client) Status(ctx context.Context, activationKey string) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/license/"+activationKey+"/status", "status", nil)
}

func (c *Client) do(ctx context.Context, method, path, endpoint string, body map[string]any) (map[string]any, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		infrastructure.ObserveRemoteRequest(endpoint, 0, time.Since(start))
		return nil, &TransportError{Err: err}
	}
	infrastructure.ObserveRemoteRequest(endpoint, resp.StatusCode(), time.Since(start))

	// An undecodable body degrades to an empty result set; the manager
	// then sees the required field missing.
	decoded := map[string]any{}
	_ = json.Unmarshal(resp.Body(), &decoded)

	if resp.StatusCode() != http.StatusOK {
		return nil, &RemoteError{StatusCode: resp.StatusCode(), Body: decoded}
	}
	return decoded, nil
}
