package server

import (
	"errors"
	"fmt"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
	"github.com/pantalytics/odoo-mcp-pro/internal/security"
)

// Stable error codes surfaced to MCP clients. Codes let callers branch
// without parsing message text.
const (
	codeInvalidRequest = "invalid_request"
	codeRateLimited    = "rate_limited"
	codeAuthFailed     = "authentication_failed"
	codeAccessDenied   = "access_denied"
	codeNotFound       = "not_found"
	codeUnavailable    = "backend_unavailable"
	codeOperation      = "operation_failed"
	codeInternal       = "internal_error"
)

// surface converts an internal error into the error returned to the MCP
// client. The taxonomy sentinels map to stable codes; the message text is
// redacted so credentials and backend URLs never leave the process.
func (s *Server) surface(err error) error {
	code := codeInternal
	switch {
	case errors.Is(err, security.ErrRateLimited):
		code = codeRateLimited
	case errors.Is(err, odoo.ErrAuthentication):
		// Credential detail stays inside; the client only learns that
		// the backend rejected the server's identity.
		return fmt.Errorf("%s: backend rejected the configured credentials", codeAuthFailed)
	case errors.Is(err, odoo.ErrAccessDenied):
		code = codeAccessDenied
	case errors.Is(err, odoo.ErrNotFound):
		code = codeNotFound
	case errors.Is(err, odoo.ErrUnavailable):
		return fmt.Errorf("%s: the backend could not be reached", codeUnavailable)
	case errors.Is(err, odoo.ErrRemoteOperation):
		code = codeOperation
	}
	return fmt.Errorf("%s: %s", code, s.redactor.RedactError(err))
}

// invalidInput reports a malformed tool argument without consulting the
// backend.
func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%s: %s", codeInvalidRequest, fmt.Sprintf(format, args...))
}
