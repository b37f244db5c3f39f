package license

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the Manager.
var (
	// ErrNoLicense is returned when no license id is registered for the
	// plugin and environment. Recoverable: the caller can register one.
	ErrNoLicense = errors.New("no license found")

	// ErrMalformedResponse is returned when the remote service violated
	// its contract (e.g. a missing activation key or validity flag).
	// Never retried.
	ErrMalformedResponse = errors.New("malformed licensing response")
)

// RemoteError is a non-200 response from the licensing service. The
// decoded response body is carried as structured error data.
type RemoteError struct {
	StatusCode int
	Body       map[string]any
}

func (e *RemoteError) Error() string {
	if code, ok := e.Body["code"].(string); ok {
		return fmt.Sprintf("licensing service returned %d (%s)", e.StatusCode, code)
	}
	return fmt.Sprintf("licensing service returned %d", e.StatusCode)
}

// TransportError is a connection or timeout failure that occurred before
// any response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("licensing service unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
