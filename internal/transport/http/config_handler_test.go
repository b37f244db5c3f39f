package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pluglic/internal/config"
)

func newConfigTestHandler(initial config.LicensingConfig) (http.Handler, *config.LicensingConfig) {
	current := initial
	h := NewConfigHandler(
		func() config.LicensingConfig { return current },
		func(lc config.LicensingConfig) error {
			current = lc
			return nil
		},
		testLogger(),
	)
	return h.Routes(), &current
}

func baseLicensingConfig() config.LicensingConfig {
	return config.LicensingConfig{
		Environment:   "production",
		CacheTTL:      12 * time.Hour,
		RemoteTimeout: 5 * time.Second,
	}
}

func TestConfigGet(t *testing.T) {
	handler, _ := newConfigTestHandler(baseLicensingConfig())

	rec, body := doJSON(t, handler, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "production", body["environment"])
	assert.Equal(t, "12h0m0s", body["cache_ttl"])
	assert.Equal(t, float64(5), body["timeout_seconds"])
	assert.Equal(t, false, body["network"])
}

func TestConfigUpdatePartial(t *testing.T) {
	handler, current := newConfigTestHandler(baseLicensingConfig())

	rec, body := doJSON(t, handler, http.MethodPut, "/", map[string]any{
		"environment": "staging",
		"cache_ttl":   "1h",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "staging", body["environment"])

	assert.Equal(t, "staging", current.Environment)
	assert.Equal(t, time.Hour, current.CacheTTL)
	assert.Equal(t, 5*time.Second, current.RemoteTimeout, "absent fields keep their values")
}

func TestConfigUpdateUnknownEnvironmentFallsBackToProduction(t *testing.T) {
	handler, current := newConfigTestHandler(baseLicensingConfig())

	rec, body := doJSON(t, handler, http.MethodPut, "/", map[string]any{
		"environment": "qa",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "production", body["environment"])
	assert.Equal(t, "production", current.Environment)
}

func TestConfigUpdateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"unparseable ttl", map[string]any{"cache_ttl": "soon"}},
		{"negative ttl", map[string]any{"cache_ttl": "-1h"}},
		{"zero timeout", map[string]any{"timeout_seconds": 0}},
		{"negative timeout", map[string]any{"timeout_seconds": -5}},
		{"oversized timeout", map[string]any{"timeout_seconds": 301}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, current := newConfigTestHandler(baseLicensingConfig())

			rec, _ := doJSON(t, handler, http.MethodPut, "/", tt.payload)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, baseLicensingConfig(), *current, "rejected updates change nothing")
		})
	}
}

func TestConfigUpdateNetworkScope(t *testing.T) {
	handler, current := newConfigTestHandler(baseLicensingConfig())

	rec, body := doJSON(t, handler, http.MethodPut, "/", map[string]any{
		"network": true,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["network"])
	assert.True(t, current.NetworkScope)
}
