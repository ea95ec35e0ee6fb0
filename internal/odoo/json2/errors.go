package json2

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
)

// maxErrorBody caps how much of an error payload is kept for messages.
const maxErrorBody = 200

// errorBody is the JSON/2 error envelope. The debug traceback is parsed
// but deliberately never surfaced.
type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// classifyStatus maps a non-200 JSON/2 response onto the shared error
// taxonomy so callers above the contract never see HTTP detail.
func classifyStatus(resp *http.Response, model, method string) error {
	msg := parseErrorMessage(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", odoo.ErrAuthentication, msg)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", odoo.ErrAccessDenied, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s/%s: %s", odoo.ErrNotFound, model, method, msg)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", odoo.ErrRemoteOperation, msg)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s/%s: HTTP %d: %s", odoo.ErrUnavailable, model, method, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: %s/%s: HTTP %d: %s", odoo.ErrRemoteOperation, model, method, resp.StatusCode, msg)
	}
}

// parseErrorMessage extracts the human-readable message from a JSON/2
// error envelope, falling back to a truncated raw body.
func parseErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return truncate(body.Message)
	}
	return truncate(strings.TrimSpace(string(data)))
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
