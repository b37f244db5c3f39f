// Package config provides application configuration loaded from a YAML
// file and PLUGLIC_* environment variables, with environment taking
// precedence over the file and the file over built-in defaults.
//
// It also owns environment resolution for the remote licensing service:
// the environment name selects one of two fixed hosts (production or
// staging), and any unrecognized name silently resolves to production.
package config
