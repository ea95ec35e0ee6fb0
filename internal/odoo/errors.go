package odoo

import "errors"

// Sentinel errors shared by every connection dialect. Dialect-specific wire
// failures are translated onto these at the connection boundary so callers
// never have to know which dialect is in use.
var (
	// ErrAuthentication indicates an invalid or expired backend credential.
	// Fatal: never retried automatically.
	ErrAuthentication = errors.New("odoo: authentication failed")

	// ErrUnavailable indicates the backend could not be reached or timed
	// out. Transient: the transport retries once with a short backoff
	// before surfacing it.
	ErrUnavailable = errors.New("odoo: backend unavailable")

	// ErrRemoteOperation indicates the backend rejected the call, e.g. a
	// constraint violation. Surfaced verbatim, never retried.
	ErrRemoteOperation = errors.New("odoo: operation rejected")

	// ErrNotFound indicates the referenced model, record, or field does
	// not exist.
	ErrNotFound = errors.New("odoo: not found")

	// ErrAccessDenied indicates the caller is known but not permitted.
	// Distinct from ErrAuthentication.
	ErrAccessDenied = errors.New("odoo: access denied")

	// ErrNotConnected indicates an operation was issued before Connect.
	ErrNotConnected = errors.New("odoo: not connected")
)

// IsRetryable reports whether the error is transient and the call may be
// retried after a short delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
