// Package odoo defines the capability-uniform connection contract for the
// Odoo backend, the shared domain grammar, and the error taxonomy every
// dialect translates onto. Concrete dialects live in subpackages
// (odoo/xmlrpc for the legacy session RPC, odoo/json2 for the modern
// bearer-token HTTP API) and are selected once at startup by the factory.
package odoo

import "context"

// Connection is the interface both backend dialects satisfy. Tools and
// resources above this contract are dialect-agnostic: they see the same
// operations, the same domain grammar, and the same error taxonomy
// regardless of which wire protocol is in use.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// Connect establishes network readiness. Idempotent. Returns
	// ErrUnavailable if the backend is unreachable within the
	// configured timeout.
	Connect(ctx context.Context) error

	// Disconnect releases resources. Idempotent.
	Disconnect() error

	// Authenticate establishes the caller's identity against the
	// backend. Returns ErrAuthentication on invalid credentials; this
	// must never be retried automatically.
	Authenticate(ctx context.Context) error

	// Search returns the ordered identifiers of records matching domain.
	// An empty result is valid and distinct from an error.
	Search(ctx context.Context, model string, domain Domain, opts SearchOptions) ([]int64, error)

	// Read returns one value mapping per requested id, preserving input
	// order. A missing id yields ErrNotFound rather than being dropped.
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error)

	// SearchRead combines Search and Read in a single backend call.
	SearchRead(ctx context.Context, model string, domain Domain, fields []string, opts SearchOptions) ([]Record, error)

	// SearchCount returns the number of records matching domain.
	SearchCount(ctx context.Context, model string, domain Domain) (int, error)

	// FieldsGet returns field metadata for a model. When attributes is
	// nil the full metadata set is returned.
	FieldsGet(ctx context.Context, model string, attributes []string) (map[string]FieldMeta, error)

	// Create inserts a record and returns its identifier.
	Create(ctx context.Context, model string, values map[string]any) (int64, error)

	// Write updates the given records.
	Write(ctx context.Context, model string, ids []int64, values map[string]any) (bool, error)

	// Unlink deletes the given records.
	Unlink(ctx context.Context, model string, ids []int64) (bool, error)

	// UID returns the authenticated user id, or 0 before Authenticate.
	UID() int64

	// Database returns the target database name.
	Database() string

	// ServerVersion returns backend version info, or nil before Connect.
	ServerVersion() *Version

	IsConnected() bool
	IsAuthenticated() bool
}
