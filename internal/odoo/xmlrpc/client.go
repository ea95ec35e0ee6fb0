// Package xmlrpc implements the odoo.Connection contract over the legacy
// XML-RPC API (Odoo 14-19): one credential exchange yields a session uid,
// then every operation goes through the generic execute_kw call carrying
// model, method name, and positional arguments.
package xmlrpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/kolo/xmlrpc"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
)

// Client talks to Odoo via XML-RPC. Session state (the authenticated uid)
// is shared across concurrent calls behind a read-mostly lock;
// re-authentication is a rare exclusive operation under the same lock.
type Client struct {
	cfg    odoo.Config
	logger *slog.Logger

	mu            sync.RWMutex
	common        *xmlrpc.Client
	object        *xmlrpc.Client
	connected     bool
	authenticated bool
	uid           int64
	version       *odoo.Version

	fieldsMu    sync.Mutex
	fieldsCache map[string]map[string]odoo.FieldMeta
}

var _ odoo.Connection = (*Client)(nil)

// New creates an XML-RPC client from a normalized configuration.
func New(cfg odoo.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:         cfg.Normalized(),
		logger:      logger,
		fieldsCache: make(map[string]map[string]odoo.FieldMeta),
	}
}

// transport returns a RoundTripper with bounded dial and response-header
// timeouts. xmlrpc calls carry no context, so the bound lives here.
func (c *Client) transport() http.RoundTripper {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: c.cfg.Timeout,
		}).DialContext,
		ResponseHeaderTimeout: c.cfg.Timeout,
	}
}

// Connect creates the RPC endpoints and verifies the backend is reachable
// by probing the version method on the common endpoint. Idempotent.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	common, err := xmlrpc.NewClient(c.cfg.URL+c.cfg.CommonPath, c.transport())
	if err != nil {
		return fmt.Errorf("%w: %v", odoo.ErrUnavailable, err)
	}
	object, err := xmlrpc.NewClient(c.cfg.URL+c.cfg.ObjectPath, c.transport())
	if err != nil {
		common.Close()
		return fmt.Errorf("%w: %v", odoo.ErrUnavailable, err)
	}

	var version struct {
		ServerVersion   string `xmlrpc:"server_version"`
		ServerSerie     string `xmlrpc:"server_serie"`
		ProtocolVersion int    `xmlrpc:"protocol_version"`
	}
	err = odoo.RetryTransient(ctx, func() error {
		if err := common.Call("version", nil, &version); err != nil {
			return fmt.Errorf("%w: version probe: %v", odoo.ErrUnavailable, err)
		}
		return nil
	})
	if err != nil {
		common.Close()
		object.Close()
		return err
	}

	c.common = common
	c.object = object
	c.version = &odoo.Version{
		ServerVersion:   version.ServerVersion,
		ServerSerie:     version.ServerSerie,
		ProtocolVersion: version.ProtocolVersion,
	}
	c.connected = true
	c.logger.Info("connected to odoo", "dialect", "xmlrpc", "server_version", version.ServerVersion)
	return nil
}

// Disconnect closes the RPC endpoints and invalidates the session.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	c.common.Close()
	c.object.Close()
	c.common = nil
	c.object = nil
	c.connected = false
	c.authenticated = false
	c.uid = 0
	c.version = nil

	c.fieldsMu.Lock()
	c.fieldsCache = make(map[string]map[string]odoo.FieldMeta)
	c.fieldsMu.Unlock()

	c.logger.Info("disconnected from odoo")
	return nil
}

// Authenticate performs the credential exchange that yields the session
// uid. Invalid credentials surface as ErrAuthentication and are never
// retried.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

// authenticateLocked performs the credential exchange. Caller holds mu.
func (c *Client) authenticateLocked(_ context.Context) error {
	if !c.connected {
		return odoo.ErrNotConnected
	}

	args := []any{c.cfg.Database, c.cfg.Username, c.cfg.LoginCredential(), map[string]any{}}

	var reply any
	if err := c.common.Call("authenticate", args, &reply); err != nil {
		return classifyAuthError(err)
	}

	uid, ok := toInt64(reply)
	if !ok || uid <= 0 {
		// Odoo answers false instead of a uid on bad credentials.
		return fmt.Errorf("%w: invalid credentials for %q", odoo.ErrAuthentication, c.cfg.Username)
	}

	c.uid = uid
	c.authenticated = true
	c.logger.Info("authenticated via xmlrpc", "uid", uid, "database", c.cfg.Database)
	return nil
}

// Search returns the ids matching domain, in backend order.
func (c *Client) Search(ctx context.Context, model string, domain odoo.Domain, opts odoo.SearchOptions) ([]int64, error) {
	kwargs := searchKwargs(opts)
	reply, err := c.executeKW(ctx, model, "search", []any{domain.Wire()}, kwargs)
	if err != nil {
		return nil, err
	}
	ids, ok := toInt64Slice(reply)
	if !ok {
		return nil, fmt.Errorf("%w: malformed search response", odoo.ErrRemoteOperation)
	}
	return ids, nil
}

// Read returns one record per id, preserving input order.
func (c *Client) Read(ctx context.Context, model string, ids []int64, fields []string) ([]odoo.Record, error) {
	kwargs := map[string]any{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	reply, err := c.executeKW(ctx, model, "read", []any{ids}, kwargs)
	if err != nil {
		return nil, err
	}
	records, ok := toRecords(reply)
	if !ok {
		return nil, fmt.Errorf("%w: malformed read response", odoo.ErrRemoteOperation)
	}
	return odoo.OrderedRecords(model, ids, records)
}

// SearchRead combines search and read in one backend call.
func (c *Client) SearchRead(ctx context.Context, model string, domain odoo.Domain, fields []string, opts odoo.SearchOptions) ([]odoo.Record, error) {
	kwargs := searchKwargs(opts)
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	reply, err := c.executeKW(ctx, model, "search_read", []any{domain.Wire()}, kwargs)
	if err != nil {
		return nil, err
	}
	records, ok := toRecords(reply)
	if !ok {
		return nil, fmt.Errorf("%w: malformed search_read response", odoo.ErrRemoteOperation)
	}
	return records, nil
}

// SearchCount returns the number of records matching domain.
func (c *Client) SearchCount(ctx context.Context, model string, domain odoo.Domain) (int, error) {
	reply, err := c.executeKW(ctx, model, "search_count", []any{domain.Wire()}, nil)
	if err != nil {
		return 0, err
	}
	count, ok := toInt64(reply)
	if !ok {
		return 0, fmt.Errorf("%w: malformed search_count response", odoo.ErrRemoteOperation)
	}
	return int(count), nil
}

// FieldsGet returns field metadata for model. Full requests are cached
// per model; attribute-filtered requests always hit the backend.
func (c *Client) FieldsGet(ctx context.Context, model string, attributes []string) (map[string]odoo.FieldMeta, error) {
	if len(attributes) == 0 {
		c.fieldsMu.Lock()
		cached, ok := c.fieldsCache[model]
		c.fieldsMu.Unlock()
		if ok {
			return cached, nil
		}
	}

	kwargs := map[string]any{}
	if len(attributes) > 0 {
		kwargs["attributes"] = attributes
	}
	reply, err := c.executeKW(ctx, model, "fields_get", nil, kwargs)
	if err != nil {
		return nil, err
	}
	fields, ok := toFieldMeta(reply)
	if !ok {
		return nil, fmt.Errorf("%w: malformed fields_get response", odoo.ErrRemoteOperation)
	}

	if len(attributes) == 0 {
		c.fieldsMu.Lock()
		c.fieldsCache[model] = fields
		c.fieldsMu.Unlock()
	}
	return fields, nil
}

// Create inserts a record and returns its identifier.
func (c *Client) Create(ctx context.Context, model string, values map[string]any) (int64, error) {
	reply, err := c.executeKW(ctx, model, "create", []any{values}, nil)
	if err != nil {
		return 0, err
	}
	id, ok := toInt64(reply)
	if !ok {
		return 0, fmt.Errorf("%w: malformed create response", odoo.ErrRemoteOperation)
	}

	c.fieldsMu.Lock()
	delete(c.fieldsCache, model)
	c.fieldsMu.Unlock()
	return id, nil
}

// Write updates the given records.
func (c *Client) Write(ctx context.Context, model string, ids []int64, values map[string]any) (bool, error) {
	reply, err := c.executeKW(ctx, model, "write", []any{ids, values}, nil)
	if err != nil {
		return false, err
	}
	ok, _ := reply.(bool)
	return ok || reply == nil, nil
}

// Unlink deletes the given records.
func (c *Client) Unlink(ctx context.Context, model string, ids []int64) (bool, error) {
	reply, err := c.executeKW(ctx, model, "unlink", []any{ids}, nil)
	if err != nil {
		return false, err
	}
	ok, _ := reply.(bool)
	return ok || reply == nil, nil
}

// UID returns the session uid, or 0.
func (c *Client) UID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uid
}

// Database returns the configured database name.
func (c *Client) Database() string { return c.cfg.Database }

// ServerVersion returns backend version info, or nil before Connect.
func (c *Client) ServerVersion() *odoo.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// IsConnected reports whether Connect has succeeded.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// IsAuthenticated reports whether a session is established.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// executeKW issues one generic RPC carrying model, method, positional
// args, and keyword args. Transient transport failures are retried once.
// A session-invalidated fault triggers one exclusive re-authentication,
// after which the call is retried with the fresh session transparently.
func (c *Client) executeKW(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	if args == nil {
		args = []any{}
	}

	reply, err := c.callOnce(ctx, model, method, args, kwargs)
	if err == nil || !isSessionInvalid(err) {
		return reply, err
	}

	if err := c.reauthenticate(ctx); err != nil {
		return nil, err
	}
	reply, err = c.callOnce(ctx, model, method, args, kwargs)
	if isSessionInvalid(err) {
		// The backend rejected a freshly established session. The
		// package-private marker stops here; callers see the shared
		// taxonomy.
		return nil, fmt.Errorf("%w: session rejected after re-authentication", odoo.ErrAuthentication)
	}
	return reply, err
}

// callOnce performs the RPC under a read lock on the session.
func (c *Client) callOnce(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	c.mu.RLock()
	object := c.object
	uid := c.uid
	c.mu.RUnlock()

	if object == nil {
		return nil, odoo.ErrNotConnected
	}
	if uid == 0 {
		return nil, fmt.Errorf("%w: not authenticated", odoo.ErrAuthentication)
	}

	params := []any{c.cfg.Database, uid, c.cfg.LoginCredential(), model, method, args, kwargs}

	var reply any
	err := odoo.RetryTransient(ctx, func() error {
		if err := object.Call("execute_kw", params, &reply); err != nil {
			return classifyError(err, model, method)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// reauthenticate re-establishes the session under the exclusive lock so
// concurrent calls never observe a half-replaced session.
func (c *Client) reauthenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authenticated = false
	c.uid = 0
	c.logger.Warn("session invalidated by backend, re-authenticating")
	return c.authenticateLocked(ctx)
}

func searchKwargs(opts odoo.SearchOptions) map[string]any {
	kwargs := map[string]any{}
	if opts.Limit > 0 {
		kwargs["limit"] = opts.Limit
	}
	if opts.Offset > 0 {
		kwargs["offset"] = opts.Offset
	}
	if opts.Order != "" {
		kwargs["order"] = opts.Order
	}
	return kwargs
}
