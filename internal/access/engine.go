// Package access computes and caches per-model, per-operation allow/deny
// verdicts in front of the connection. Four trust models are supported:
// unconditional bypass, read-only bypass, delegation to the backend's
// access-check endpoint with a TTL cache, and native enforcement where the
// backend itself owns the decision. The mode is fixed at construction.
package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
)

// Operation is the kind of access a tool call needs.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpCreate Operation = "create"
	OpUnlink Operation = "unlink"
)

// IsRead reports whether the operation only observes data. Search, count,
// and schema introspection all map to OpRead.
func (op Operation) IsRead() bool { return op == OpRead }

// Mode selects which trust model the engine applies. Immutable for the
// process lifetime.
type Mode string

const (
	// ModeBypass allows every operation on every model. Only for fully
	// trusted local single-user deployments.
	ModeBypass Mode = "bypass"

	// ModeReadBypass allows reads unconditionally and denies every
	// mutation without consulting the backend.
	ModeReadBypass Mode = "read_bypass"

	// ModeDelegated asks the backend's access-check endpoint per model
	// and caches the verdict.
	ModeDelegated Mode = "delegated"

	// ModeNative performs no local check at all: the backend enforces
	// row and field level security itself and its denial is
	// authoritative. A distinct mode, not a fallback: it changes who
	// owns the decision.
	ModeNative Mode = "native"
)

// Valid reports whether m names a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeBypass, ModeReadBypass, ModeDelegated, ModeNative:
		return true
	}
	return false
}

// Permissions is the backend's access descriptor for one model.
type Permissions struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Create bool `json:"create"`
	Unlink bool `json:"unlink"`
}

// Allows returns the verdict for one operation kind.
func (p Permissions) Allows(op Operation) bool {
	switch op {
	case OpRead:
		return p.Read
	case OpWrite:
		return p.Write
	case OpCreate:
		return p.Create
	case OpUnlink:
		return p.Unlink
	}
	return false
}

// allowAll is the descriptor used by the bypass modes.
var allowAll = Permissions{Read: true, Write: true, Create: true, Unlink: true}

// Fetcher retrieves the access descriptor for a model from the backend.
// Implemented by *Client; faked in tests.
type Fetcher interface {
	FetchPermissions(ctx context.Context, model string) (Permissions, error)
}

// DefaultTTL is how long a delegated verdict stays fresh.
const DefaultTTL = 300 * time.Second

// Config configures the engine.
type Config struct {
	Mode Mode

	// TTL is the lifetime of a cached allowed verdict. Defaults to
	// DefaultTTL.
	TTL time.Duration

	// DenyTTL is the lifetime of a cached descriptor that denies at
	// least one operation. A shorter value picks up newly granted
	// permissions sooner. Defaults to TTL.
	DenyTTL time.Duration
}

// entry is one cached verdict: the descriptor plus when it was computed.
// Entries are replaced wholesale on recomputation, never merged.
type entry struct {
	perms   Permissions
	fetched time.Time
}

// Engine returns allow/deny verdicts. It owns its cache exclusively and
// never mutates backend data. Safe for concurrent use; concurrent
// delegated checks for the same model are collapsed into a single remote
// call.
type Engine struct {
	mode    Mode
	ttl     time.Duration
	denyTTL time.Duration
	fetcher Fetcher
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]entry
	group singleflight.Group
}

// NewEngine creates an engine. fetcher may be nil for the non-delegated
// modes.
func NewEngine(cfg Config, fetcher Fetcher) (*Engine, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeDelegated
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("access: unknown mode %q", cfg.Mode)
	}
	if cfg.Mode == ModeDelegated && fetcher == nil {
		return nil, fmt.Errorf("access: delegated mode requires a fetcher")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.DenyTTL <= 0 {
		cfg.DenyTTL = cfg.TTL
	}
	return &Engine{
		mode:    cfg.Mode,
		ttl:     cfg.TTL,
		denyTTL: cfg.DenyTTL,
		fetcher: fetcher,
		now:     time.Now,
		cache:   make(map[string]entry),
	}, nil
}

// Mode returns the configured trust model.
func (e *Engine) Mode() Mode { return e.mode }

// Check returns nil if op on model is allowed, or an error wrapping
// odoo.ErrAccessDenied. It never mutates anything; the caller is
// responsible for short-circuiting before touching the connection.
func (e *Engine) Check(ctx context.Context, model string, op Operation) error {
	switch e.mode {
	case ModeBypass:
		return nil
	case ModeReadBypass:
		if op.IsRead() {
			return nil
		}
		return fmt.Errorf("%w: %s on %s: server is in read-only mode", odoo.ErrAccessDenied, op, model)
	case ModeNative:
		// The backend owns the decision; its rejection surfaces from
		// the connection as ErrAccessDenied.
		return nil
	}

	perms, err := e.permissions(ctx, model)
	if err != nil {
		return err
	}
	if !perms.Allows(op) {
		return fmt.Errorf("%w: %s on %s not permitted", odoo.ErrAccessDenied, op, model)
	}
	return nil
}

// Permissions returns the access descriptor for model under the current
// mode. Bypass modes answer locally; native mode claims everything and
// lets the backend reject.
func (e *Engine) Permissions(ctx context.Context, model string) (Permissions, error) {
	switch e.mode {
	case ModeBypass, ModeNative:
		return allowAll, nil
	case ModeReadBypass:
		return Permissions{Read: true}, nil
	}
	return e.permissions(ctx, model)
}

// permissions serves the delegated mode: cache lookup with lazy expiry,
// then a single-flight remote fetch on miss.
func (e *Engine) permissions(ctx context.Context, model string) (Permissions, error) {
	if perms, ok := e.cached(model); ok {
		return perms, nil
	}

	v, err, _ := e.group.Do(model, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have
		// stored a verdict between our miss and this closure running.
		if perms, ok := e.cached(model); ok {
			return perms, nil
		}

		perms, err := e.fetcher.FetchPermissions(ctx, model)
		if err != nil {
			// Failures are not verdicts; nothing is cached.
			return Permissions{}, err
		}

		e.mu.Lock()
		e.cache[model] = entry{perms: perms, fetched: e.now()}
		e.mu.Unlock()
		return perms, nil
	})
	if err != nil {
		return Permissions{}, err
	}
	return v.(Permissions), nil
}

// cached returns a fresh cached descriptor. Expiry is computed lazily at
// read time: an entry at or past its TTL is treated as absent. A
// descriptor denying any operation uses the (possibly shorter) deny TTL
// so a just-granted permission is picked up sooner.
func (e *Engine) cached(model string) (Permissions, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.cache[model]
	if !ok {
		return Permissions{}, false
	}

	ttl := e.ttl
	if ent.perms != allowAll {
		ttl = e.denyTTL
	}
	if e.now().Sub(ent.fetched) >= ttl {
		delete(e.cache, model)
		return Permissions{}, false
	}
	return ent.perms, true
}

// Invalidate drops the cached verdict for model, forcing the next check
// to consult the backend.
func (e *Engine) Invalidate(model string) {
	e.mu.Lock()
	delete(e.cache, model)
	e.mu.Unlock()
}
