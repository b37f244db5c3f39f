// Package http is the HTTP facade over the license manager. It maps
// REST endpoints onto manager operations and translates manager errors
// into RFC 7807 problem responses. The facade performs request-shape
// validation only; it trusts its caller for identity.
package http
