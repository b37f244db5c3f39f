package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It backs tests and embedding callers
// that do not need persistence across restarts.
type Memory struct {
	mu      sync.RWMutex
	entries map[Scope]map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: map[Scope]map[string]string{
			ScopeSite:    {},
			ScopeNetwork: {},
		},
	}
}

// Get returns the value for key and whether it exists.
func (m *Memory) Get(ctx context.Context, scope Scope, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.entries[scope][key]
	return value, ok, nil
}

// Set stores value under key, overwriting any previous value.
func (m *Memory) Set(ctx context.Context, scope Scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[scope][key] = value
	return nil
}

// Delete removes key.
func (m *Memory) Delete(ctx context.Context, scope Scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries[scope], key)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
