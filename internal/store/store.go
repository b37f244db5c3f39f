// Package store provides the key/value persistence used by the license
// manager. Values are scoped either to a single site or to a whole
// multi-site network; the two scopes are independent namespaces.
package store

import "context"

// Scope selects the persistence namespace for a key.
type Scope string

const (
	// ScopeSite holds values that apply to a single site.
	ScopeSite Scope = "site"
	// ScopeNetwork holds values shared across a multi-site cluster.
	ScopeNetwork Scope = "network"
)

// Store is an abstract key/value store. Implementations must be safe for
// concurrent use; last writer wins, no compare-and-swap is provided.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, scope Scope, key string) (string, bool, error)
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, scope Scope, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, scope Scope, key string) error
	// Close releases any resources held by the store.
	Close() error
}
