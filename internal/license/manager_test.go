package license

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pluglic/internal/config"
	"pluglic/internal/shared/testutil"
	"pluglic/internal/store"
)

// fakeRemote is a scriptable RemoteClient recording calls.
type fakeRemote struct {
	activateResp  map[string]any
	activateErr   error
	deactivateErr error
	statusResp    map[string]any
	statusErr     error

	activateCalls   int
	deactivateCalls int
	statusCalls     int

	lastLicenseID     string
	lastActivationKey string
	lastPayload       map[string]any
}

func (f *fakeRemote) Activate(ctx context.Context, licenseID string, payload map[string]any) (map[string]any, error) {
	f.activateCalls++
	f.lastLicenseID = licenseID
	f.lastPayload = payload
	if f.activateErr != nil {
		return nil, f.activateErr
	}
	return f.activateResp, nil
}

func (f *fakeRemote) Deactivate(ctx context.Context, licenseID, activationKey string) (map[string]any, error) {
	f.deactivateCalls++
	f.lastLicenseID = licenseID
	f.lastActivationKey = activationKey
	if f.deactivateErr != nil {
		return nil, f.deactivateErr
	}
	return map[string]any{}, nil
}

func (f *fakeRemote) Status(ctx context.Context, activationKey string) (map[string]any, error) {
	f.statusCalls++
	f.lastActivationKey = activationKey
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusResp, nil
}

func activationResponse(key string) map[string]any {
	return map[string]any{"data": map[string]any{"activation_key": key}}
}

func statusResponse(valid bool) map[string]any {
	return map[string]any{"data": map[string]any{"valid": valid}}
}

func testLicensingConfig() config.LicensingConfig {
	return config.LicensingConfig{
		Environment:   "production",
		CacheTTL:      time.Hour,
		RemoteTimeout: 5 * time.Second,
		SiteOrigin:    "https://shop.example.com",
		AdminEmail:    "owner@example.com",
		CacheMaxSize:  64,
	}
}

func newTestManager(remote RemoteClient) (*Manager, *store.Memory) {
	st := store.NewMemory()
	m := NewManager(Options{
		Config: testLicensingConfig(),
		Store:  st,
		Client: remote,
	})
	return m, st
}

func TestOperationsWithoutLicenseID(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	m, _ := newTestManager(remote)

	t.Run("activate without explicit id", func(t *testing.T) {
		ok, err := m.Activate(ctx, "unknown-plugin", "", nil)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrNoLicense)
	})

	t.Run("deactivate", func(t *testing.T) {
		ok, err := m.Deactivate(ctx, "unknown-plugin")
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrNoLicense)
	})

	t.Run("check", func(t *testing.T) {
		_, err := m.Check(ctx, "unknown-plugin", false)
		assert.ErrorIs(t, err, ErrNoLicense)
	})

	t.Run("license id lookup", func(t *testing.T) {
		_, err := m.LicenseID(ctx, "unknown-plugin")
		assert.ErrorIs(t, err, ErrNoLicense)
	})

	assert.Zero(t, remote.activateCalls)
	assert.Zero(t, remote.deactivateCalls)
	assert.Zero(t, remote.statusCalls)
}

func TestActivateOverwritesStoredLicenseID(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{activateResp: activationResponse("key-abc")}
	m, _ := newTestManager(remote)

	require.NoError(t, m.StoreLicenseID(ctx, "acme-plugin", "lic-old"))

	ok, err := m.Activate(ctx, "acme-plugin", "lic-new", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	id, err := m.LicenseID(ctx, "acme-plugin")
	require.NoError(t, err)
	assert.Equal(t, "lic-new", id)
	assert.Equal(t, "lic-new", remote.lastLicenseID)
}

func TestActivateUsesStoredLicenseID(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{activateResp: activationResponse("key-abc")}
	m, _ := newTestManager(remote)

	require.NoError(t, m.StoreLicenseID(ctx, "acme-plugin", "lic-123"))

	ok, err := m.Activate(ctx, "acme-plugin", "", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "lic-123", remote.lastLicenseID)
}

func TestActivatePayloadDefaultsAndOverrides(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{activateResp: activationResponse("key-abc")}
	m, _ := newTestManager(remote)

	_, err := m.Activate(ctx, "acme-plugin", "lic-123", map[string]any{
		"email": "override@example.com",
		"seats": 5,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com", remote.lastPayload["domain_name"])
	assert.Equal(t, "override@example.com", remote.lastPayload["email"], "caller-supplied values win")
	assert.Equal(t, 5, remote.lastPayload["seats"])
	assert.NotEmpty(t, remote.lastPayload["instance"])
}

func TestActivateInstanceIDIsStable(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{activateResp: activationResponse("key-abc")}
	m, _ := newTestManager(remote)

	_, err := m.Activate(ctx, "acme-plugin", "lic-123", nil)
	require.NoError(t, err)
	first := remote.lastPayload["instance"]

	_, err = m.Activate(ctx, "acme-plugin", "lic-123", nil)
	require.NoError(t, err)

	assert.Equal(t, first, remote.lastPayload["instance"])
}

func TestActivateMalformedResponse(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		resp map[string]any
	}{
		{"empty body", map[string]any{}},
		{"missing data", map[string]any{"success": true}},
		{"missing activation key", map[string]any{"data": map[string]any{}}},
		{"empty activation key", activationResponse("")},
		{"wrong type", map[string]any{"data": map[string]any{"activation_key": 42}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{activateResp: tt.resp}
			m, st := newTestManager(remote)

			ok, err := m.Activate(ctx, "acme-plugin", "lic-123", nil)
			assert.False(t, ok)
			assert.ErrorIs(t, err, ErrMalformedResponse)

			_, found, err := st.Get(ctx, store.ScopeSite, "activation_key:acme-plugin:production")
			require.NoError(t, err)
			assert.False(t, found, "no activation key persisted on contract violation")
		})
	}
}

func TestActivateRemoteFailurePropagates(t *testing.T) {
	ctx := context.Background()
	remoteErr := &RemoteError{StatusCode: 404, Body: map[string]any{"code": "not-found"}}
	remote := &fakeRemote{activateErr: remoteErr}
	m, _ := newTestManager(remote)

	ok, err := m.Activate(ctx, "acme-plugin", "lic-123", nil)
	assert.False(t, ok)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 404, re.StatusCode)
	assert.Equal(t, "not-found", re.Body["code"])
}

func TestDeactivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{activateResp: activationResponse("key-abc")}
	m, _ := newTestManager(remote)

	_, err := m.Activate(ctx, "acme-plugin", "lic-123", nil)
	require.NoError(t, err)

	ok, err := m.Deactivate(ctx, "acme-plugin")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Deactivate(ctx, "acme-plugin")
	require.NoError(t, err)
	assert.True(t, ok, "second deactivate short-circuits")

	assert.Equal(t, 1, remote.deactivateCalls, "remote endpoint called at most once")
}

func TestDeactivateRemoteFailureKeepsKey(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{activateResp: activationResponse("key-abc")}
	m, st := newTestManager(remote)

	_, err := m.Activate(ctx, "acme-plugin", "lic-123", nil)
	require.NoError(t, err)

	remote.deactivateErr = &TransportError{Err: errors.New("connection refused")}

	ok, err := m.Deactivate(ctx, "acme-plugin")
	assert.False(t, ok)
	require.Error(t, err)

	_, found, err := st.Get(ctx, store.ScopeSite, "activation_key:acme-plugin:production")
	require.NoError(t, err)
	assert.True(t, found, "key survives the failure so a retry can reattempt")

	// A later retry succeeds and clears the key.
	remote.deactivateErr = nil
	ok, err = m.Deactivate(ctx, "acme-plugin")
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, err = st.Get(ctx, store.ScopeSite, "activation_key:acme-plugin:production")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCheckWithoutActivationKey(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	m, _ := newTestManager(remote)

	require.NoError(t, m.StoreLicenseID(ctx, "acme-plugin", "lic-123"))

	valid, err := m.Check(ctx, "acme-plugin", false)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Zero(t, remote.statusCalls, "no remote call without an activation key")
}

func TestCheckCachesWithinTTL(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		activateResp: activationResponse("key-abc"),
		statusResp:   statusResponse(true),
	}
	m, _ := newTestManager(remote)

	_, err := m.Activate(ctx, "acme-plugin", "lic-123", nil)
	require.NoError(t, err)

	valid, err := m.Check(ctx, "acme-plugin", false)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = m.Check(ctx, "acme-plugin", false)
	require.NoError(t, err)
	assert.True(t, valid)

	assert.Equal(t, 1, remote.statusCalls, "second check within TTL is served from cache")

	_, err = m.Check(ctx, "acme-plugin", true)
	require.NoError(t, err)
	assert.Equal(t, 2, remote.statusCalls, "force always issues a remote call")
}

func TestCheckCachesInvalidResults(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		activateResp: activationResponse("key-abc"),
		statusResp:   statusResponse(false),
	}
	m, _ := newTestManager(remote)

	_, err := m.Activate(ctx, "acme-plugin", "lic-123", nil)
	require.NoError(t, err)

	valid, err := m.Check(ctx, "acme-plugin", false)
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = m.Check(ctx, "acme-plugin", false)
	require.NoError(t, err)
	assert.False(t, valid)

	assert.Equal(t, 1, remote.statusCalls, "invalid results are cached too")
}

func TestCheckMalformedStatusResponse(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		activateResp: activationResponse("key-abc"),
		statusResp:   map[string]any{"data": map[string]any{}},
	}
	m, _ := newTestManager(remote)

	_, err := m.Activate(ctx, "acme-plugin", "lic-123", nil)
	require.NoError(t, err)

	_, err = m.Check(ctx, "acme-plugin", false)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	// Nothing was cached; the next check hits the remote again.
	_, err = m.Check(ctx, "acme-plugin", false)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, 2, remote.statusCalls)
}

func TestCheckCacheKeyRotatesWithActivationKey(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		activateResp: activationResponse("key-one"),
		statusResp:   statusResponse(true),
	}
	m, _ := newTestManager(remote)

	_, err := m.Activate(ctx, "acme-plugin", "lic-123", nil)
	require.NoError(t, err)

	_, err = m.Check(ctx, "acme-plugin", false)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.statusCalls)

	// Re-activation issues a new key; the old cache entry no longer
	// applies because the key is part of the cache key.
	remote.activateResp = activationResponse("key-two")
	_, err = m.Activate(ctx, "acme-plugin", "", nil)
	require.NoError(t, err)

	_, err = m.Check(ctx, "acme-plugin", false)
	require.NoError(t, err)
	assert.Equal(t, 2, remote.statusCalls)
	assert.Equal(t, "key-two", remote.lastActivationKey)
}

func TestLicenseIDPassthroughs(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(&fakeRemote{})

	require.NoError(t, m.StoreLicenseID(ctx, "acme-plugin", "lic-123"))

	id, err := m.LicenseID(ctx, "acme-plugin")
	require.NoError(t, err)
	assert.Equal(t, "lic-123", id)

	require.NoError(t, m.StoreLicenseID(ctx, "acme-plugin", "lic-456"))
	id, err = m.LicenseID(ctx, "acme-plugin")
	require.NoError(t, err)
	assert.Equal(t, "lic-456", id, "store is an unconditional overwrite")

	require.NoError(t, m.DeleteLicenseID(ctx, "acme-plugin"))
	_, err = m.LicenseID(ctx, "acme-plugin")
	assert.ErrorIs(t, err, ErrNoLicense)
}

func TestNetworkScopeSelectsSharedNamespace(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	cfg := testLicensingConfig()
	cfg.NetworkScope = true
	m := NewManager(Options{Config: cfg, Store: st, Client: &fakeRemote{}})

	require.NoError(t, m.StoreLicenseID(ctx, "acme-plugin", "lic-net"))

	_, found, err := st.Get(ctx, store.ScopeSite, "license_id:acme-plugin:production")
	require.NoError(t, err)
	assert.False(t, found)

	value, found, err := st.Get(ctx, store.ScopeNetwork, "license_id:acme-plugin:production")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "lic-net", value)
}

func TestEnvironmentsAreIsolated(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	prodCfg := testLicensingConfig()
	prod := NewManager(Options{Config: prodCfg, Store: st, Client: &fakeRemote{}})

	stagingCfg := testLicensingConfig()
	stagingCfg.Environment = "staging"
	staging := NewManager(Options{Config: stagingCfg, Store: st, Client: &fakeRemote{}})

	require.NoError(t, prod.StoreLicenseID(ctx, "acme-plugin", "lic-prod"))

	_, err := staging.LicenseID(ctx, "acme-plugin")
	assert.ErrorIs(t, err, ErrNoLicense)
}

func TestManagerLogsRemoteFailures(t *testing.T) {
	ctx := context.Background()
	logger, captured := testutil.NewCaptureLogger()

	remote := &fakeRemote{activateResp: activationResponse("key-abc")}
	st := store.NewMemory()
	m := NewManager(Options{
		Config: testLicensingConfig(),
		Store:  st,
		Client: remote,
		Logger: logger,
	})

	_, err := m.Activate(ctx, "acme-plugin", "lic-123", nil)
	require.NoError(t, err)
	assert.True(t, captured.HasMessage("license activated"))
	assert.False(t, captured.HasAttr("license_id", "lic-123"), "license id is masked in logs")

	remote.deactivateErr = &TransportError{Err: errors.New("connection reset")}
	_, err = m.Deactivate(ctx, "acme-plugin")
	require.Error(t, err)

	testutil.AssertLogged(t, captured, slog.LevelWarn, "remote deactivation failed")
	assert.True(t, captured.HasAttr("plugin", "acme-plugin"))
}

func TestFullLicenseLifecycle(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		activateResp: activationResponse("key-abc"),
		statusResp:   statusResponse(true),
	}
	m, _ := newTestManager(remote)

	ok, err := m.Activate(ctx, "acme-plugin", "lic-123", map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok)

	valid, err := m.Check(ctx, "acme-plugin", false)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, 1, remote.statusCalls)

	ok, err = m.Deactivate(ctx, "acme-plugin")
	require.NoError(t, err)
	assert.True(t, ok)

	valid, err = m.Check(ctx, "acme-plugin", false)
	require.NoError(t, err)
	assert.False(t, valid, "no activation key means invalid")
	assert.Equal(t, 1, remote.statusCalls, "post-deactivation check makes no remote call")
}
