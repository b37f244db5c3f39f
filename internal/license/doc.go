// Package license implements the plugin license lifecycle: storing a
// license identifier per plugin, activating and deactivating that license
// against the remote licensing service, and caching validity checks.
//
// The Manager is the single authority for activation state transitions.
// It enforces ordering (a license id must exist before activation, an
// activation key before deactivation or status checks), persists its
// records through an abstract key/value store, and never retries remote
// failures internally.
package license
