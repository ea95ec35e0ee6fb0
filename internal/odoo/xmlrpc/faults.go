package xmlrpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kolo/xmlrpc"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
)

// errSessionInvalid marks a fault reporting an invalidated session. It is
// package-private: executeKW consumes it to trigger re-authentication and
// it never crosses the connection boundary.
var errSessionInvalid = errors.New("xmlrpc: session invalidated")

// classifyError maps an RPC failure onto the shared error taxonomy.
// Network failures are transient; faults are classified by the exception
// name Odoo embeds in the fault string.
func classifyError(err error, model, method string) error {
	var fault xmlrpc.FaultError
	if !errors.As(err, &fault) {
		return fmt.Errorf("%w: %s/%s: %v", odoo.ErrUnavailable, model, method, err)
	}

	msg := strings.ToLower(fault.String)
	switch {
	case strings.Contains(msg, "sessionexpired"),
		strings.Contains(msg, "session expired"),
		strings.Contains(msg, "session invalid"):
		return fmt.Errorf("%w: %s", errSessionInvalid, truncateFault(fault.String))
	case strings.Contains(msg, "accessdenied"), strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %s", odoo.ErrAuthentication, truncateFault(fault.String))
	case strings.Contains(msg, "accesserror"), strings.Contains(msg, "access error"),
		strings.Contains(msg, "not allowed"):
		return fmt.Errorf("%w: %s", odoo.ErrAccessDenied, truncateFault(fault.String))
	case strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "doesn't exist"),
		strings.Contains(msg, "keyerror"),
		strings.Contains(msg, "invalid field"):
		return fmt.Errorf("%w: %s/%s: %s", odoo.ErrNotFound, model, method, truncateFault(fault.String))
	default:
		return fmt.Errorf("%w: %s", odoo.ErrRemoteOperation, truncateFault(fault.String))
	}
}

// classifyAuthError maps a failure of the authenticate call itself.
func classifyAuthError(err error) error {
	var fault xmlrpc.FaultError
	if !errors.As(err, &fault) {
		return fmt.Errorf("%w: %v", odoo.ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %s", odoo.ErrAuthentication, truncateFault(fault.String))
}

// isSessionInvalid reports whether the error carries the session marker.
func isSessionInvalid(err error) bool {
	return errors.Is(err, errSessionInvalid)
}

// truncateFault keeps the first line of a fault string, dropping the
// server traceback Odoo appends below it.
func truncateFault(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return strings.TrimSpace(s)
}
