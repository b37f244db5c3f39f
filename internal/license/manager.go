package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"pluglic/internal/config"
	"pluglic/internal/infrastructure"
	"pluglic/internal/store"
)

// Manager is the single authority for license state transitions. It owns
// the mapping between plugin identity, license identity, activation key,
// and cached validity.
//
// Activation keys are keyed by (pluginSlug, environment), not by license
// id: a rotated license id keeps pointing at the same live activation
// until the caller deactivates or reactivates.
type Manager struct {
	cfg    config.LicensingConfig
	env    config.Environment
	scope  store.Scope
	store  store.Store
	client RemoteClient
	cache  *StatusCache
	logger *slog.Logger
}

// Options configures a Manager. Config is captured by value at
// construction; settings changed afterwards never leak into an existing
// manager instance.
type Options struct {
	Config config.LicensingConfig
	Store  store.Store
	// Client overrides the remote client; when nil a Client for the
	// configured environment is used.
	Client RemoteClient
	Logger *slog.Logger
}

// NewManager creates a license manager from explicit options.
func NewManager(opts Options) *Manager {
	env := opts.Config.ResolvedEnvironment()

	client := opts.Client
	if client == nil {
		client = NewClient(env, opts.Config.RemoteTimeout)
	}

	scope := store.ScopeSite
	if opts.Config.NetworkScope {
		scope = store.ScopeNetwork
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxSize := opts.Config.CacheMaxSize
	if maxSize <= 0 {
		maxSize = 256
	}

	return &Manager{
		cfg:    opts.Config,
		env:    env,
		scope:  scope,
		store:  opts.Store,
		client: client,
		cache:  NewStatusCache(maxSize),
		logger: logger.With(slog.String("component", "license_manager"), slog.String("environment", string(env))),
	}
}

// Environment returns the environment this manager was constructed for.
func (m *Manager) Environment() config.Environment {
	return m.env
}

// CacheStats reports status cache effectiveness.
func (m *Manager) CacheStats() CacheStats {
	return m.cache.Stats()
}

// Activate registers (or resolves) the license id for the plugin and
// activates it against the remote service. A provided licenseID always
// overwrites the stored record before the remote call. On success the
// issued activation key is persisted for the (slug, environment) pair.
func (m *Manager) Activate(ctx context.Context, slug, licenseID string, extra map[string]any) (bool, error) {
	if licenseID != "" {
		if err := m.store.Set(ctx, m.scope, m.licenseIDKey(slug), licenseID); err != nil {
			return false, fmt.Errorf("failed to store license id: %w", err)
		}
	} else {
		stored, ok, err := m.store.Get(ctx, m.scope, m.licenseIDKey(slug))
		if err != nil {
			return false, fmt.Errorf("failed to read license id: %w", err)
		}
		if !ok {
			return false, ErrNoLicense
		}
		licenseID = stored
	}

	payload := map[string]any{
		"domain_name": m.cfg.SiteOrigin,
		"email":       m.cfg.AdminEmail,
		"instance":    m.instanceID(ctx),
	}
	for k, v := range extra {
		payload[k] = v
	}

	body, err := m.client.Activate(ctx, licenseID, payload)
	if err != nil {
		m.logger.WarnContext(ctx, "remote activation failed",
			slog.String("plugin", slug),
			slog.String("error", err.Error()))
		return false, err
	}

	activationKey, ok := stringField(body, "data", "activation_key")
	if !ok || activationKey == "" {
		m.logger.ErrorContext(ctx, "activation response missing activation key",
			slog.String("plugin", slug))
		return false, fmt.Errorf("%w: missing data.activation_key", ErrMalformedResponse)
	}

	if err := m.store.Set(ctx, m.scope, m.activationKeyKey(slug), activationKey); err != nil {
		return false, fmt.Errorf("failed to store activation key: %w", err)
	}

	m.logger.InfoContext(ctx, "license activated",
		slog.String("plugin", slug),
		slog.String("license_id", maskForLog(licenseID)))
	return true, nil
}

// Deactivate releases the plugin's live activation. When no activation
// key is stored the license is already deactivated and the call succeeds
// without touching the remote service. A remote failure keeps the key in
// place so a retry can reattempt.
func (m *Manager) Deactivate(ctx context.Context, slug string) (bool, error) {
	licenseID, ok, err := m.store.Get(ctx, m.scope, m.licenseIDKey(slug))
	if err != nil {
		return false, fmt.Errorf("failed to read license id: %w", err)
	}
	if !ok {
		return false, ErrNoLicense
	}

	activationKey, ok, err := m.store.Get(ctx, m.scope, m.activationKeyKey(slug))
	if err != nil {
		return false, fmt.Errorf("failed to read activation key: %w", err)
	}
	if !ok {
		// Already deactivated.
		return true, nil
	}

	if _, err := m.client.Deactivate(ctx, licenseID, activationKey); err != nil {
		m.logger.WarnContext(ctx, "remote deactivation failed, keeping activation key",
			slog.String("plugin", slug),
			slog.String("error", err.Error()))
		return false, err
	}

	if err := m.store.Delete(ctx, m.scope, m.activationKeyKey(slug)); err != nil {
		return false, fmt.Errorf("failed to delete activation key: %w", err)
	}

	m.logger.InfoContext(ctx, "license deactivated", slog.String("plugin", slug))
	return true, nil
}

// Check reports whether the plugin's activation is currently valid.
// Without an activation key the license is invalid and no remote call is
// made. Results (valid or not) are cached for the configured TTL; force
// bypasses the cache.
func (m *Manager) Check(ctx context.Context, slug string, force bool) (bool, error) {
	_, ok, err := m.store.Get(ctx, m.scope, m.licenseIDKey(slug))
	if err != nil {
		return false, fmt.Errorf("failed to read license id: %w", err)
	}
	if !ok {
		return false, ErrNoLicense
	}

	activationKey, ok, err := m.store.Get(ctx, m.scope, m.activationKeyKey(slug))
	if err != nil {
		return false, fmt.Errorf("failed to read activation key: %w", err)
	}
	if !ok {
		return false, nil
	}

	// The activation key is part of the cache key, so rotating the key
	// implicitly invalidates previous entries.
	cacheKey := statusCacheKey(slug, m.env, activationKey)
	if !force {
		if valid, hit := m.cache.Get(cacheKey); hit {
			infrastructure.RecordCacheHit()
			return valid, nil
		}
		infrastructure.RecordCacheMiss()
	}

	body, err := m.client.Status(ctx, activationKey)
	if err != nil {
		return false, err
	}

	valid, ok := boolField(body, "data", "valid")
	if !ok {
		return false, fmt.Errorf("%w: missing data.valid", ErrMalformedResponse)
	}

	m.cache.Set(cacheKey, valid, m.cfg.CacheTTL)

	m.logger.DebugContext(ctx, "license status refreshed",
		slog.String("plugin", slug),
		slog.Bool("valid", valid))
	return valid, nil
}

// StoreLicenseID unconditionally overwrites the stored license id for the
// plugin. No remote call is made.
func (m *Manager) StoreLicenseID(ctx context.Context, slug, licenseID string) error {
	if err := m.store.Set(ctx, m.scope, m.licenseIDKey(slug), licenseID); err != nil {
		return fmt.Errorf("failed to store license id: %w", err)
	}
	return nil
}

// LicenseID returns the stored license id for the plugin.
func (m *Manager) LicenseID(ctx context.Context, slug string) (string, error) {
	licenseID, ok, err := m.store.Get(ctx, m.scope, m.licenseIDKey(slug))
	if err != nil {
		return "", fmt.Errorf("failed to read license id: %w", err)
	}
	if !ok {
		return "", ErrNoLicense
	}
	return licenseID, nil
}

// DeleteLicenseID removes the stored license id for the plugin.
func (m *Manager) DeleteLicenseID(ctx context.Context, slug string) error {
	if err := m.store.Delete(ctx, m.scope, m.licenseIDKey(slug)); err != nil {
		return fmt.Errorf("failed to delete license id: %w", err)
	}
	return nil
}

// instanceID returns the stable install identifier sent with activation
// payloads, creating and persisting one on first use. Store failures fall
// back to an ephemeral id rather than blocking activation.
func (m *Manager) instanceID(ctx context.Context) string {
	key := "instance_id:" + string(m.env)

	id, ok, err := m.store.Get(ctx, m.scope, key)
	if err == nil && ok {
		return id
	}

	id = uuid.NewString()
	if err := m.store.Set(ctx, m.scope, key, id); err != nil {
		m.logger.WarnContext(ctx, "failed to persist instance id",
			slog.String("error", err.Error()))
	}
	return id
}

func (m *Manager) licenseIDKey(slug string) string {
	return "license_id:" + slug + ":" + string(m.env)
}

func (m *Manager) activationKeyKey(slug string) string {
	return "activation_key:" + slug + ":" + string(m.env)
}

// statusCacheKey derives the cache key from the full
// (slug, environment, activationKey) triple.
func statusCacheKey(slug string, env config.Environment, activationKey string) string {
	h := sha256.Sum256([]byte(slug + "|" + string(env) + "|" + activationKey))
	return hex.EncodeToString(h[:16])
}

// stringField extracts body[container][field] as a string.
func stringField(body map[string]any, container, field string) (string, bool) {
	data, ok := body[container].(map[string]any)
	if !ok {
		return "", false
	}
	value, ok := data[field].(string)
	return value, ok
}

// boolField extracts body[container][field] as a bool.
func boolField(body map[string]any, container, field string) (bool, bool) {
	data, ok := body[container].(map[string]any)
	if !ok {
		return false, false
	}
	value, ok := data[field].(bool)
	return value, ok
}

// maskForLog hides most of an identifier in log output.
func maskForLog(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
