// Package json2 implements the odoo.Connection contract over the JSON/2
// external API (Odoo 19+): one HTTP POST per (model, method) pair, bearer
// token authentication on every call, named JSON arguments, and real HTTP
// status codes. There is no session; every request self-authenticates.
package json2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
)

// Client talks to Odoo via the JSON/2 API. Safe for concurrent use: the
// only mutable state is the connect/authenticate lifecycle flags and the
// per-model field metadata cache, each behind its own lock.
type Client struct {
	cfg    odoo.Config
	logger *slog.Logger

	mu            sync.RWMutex
	httpClient    *http.Client
	connected     bool
	authenticated bool
	uid           int64
	version       *odoo.Version

	fieldsMu    sync.Mutex
	fieldsCache map[string]map[string]odoo.FieldMeta
}

var _ odoo.Connection = (*Client)(nil)

// New creates a JSON/2 client from a normalized configuration.
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

// Connect creates the HTTP client and verifies the backend is reachable by
// fetching the version endpoint. Idempotent.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	c.httpClient = &http.Client{Timeout: c.cfg.Timeout}

	version, err := c.fetchVersion(ctx)
	if err != nil {
		c.httpClient = nil
		return err
	}

	c.version = version
	c.connected = true
	c.logger.Info("connected to odoo", "dialect", "json2", "server_version", version.ServerVersion)
	return nil
}

// Disconnect drops the HTTP client and resets all lifecycle state.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	c.httpClient.CloseIdleConnections()
	c.httpClient = nil
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

// Authenticate verifies an API key is configured and resolves the
// authenticated user id via res.users/context_get. JSON/2 is otherwise
// stateless: the key is sent with every request.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if !connected {
		return odoo.ErrNotConnected
	}

	if c.cfg.APIKey == "" {
		return fmt.Errorf("%w: api key required for json2", odoo.ErrAuthentication)
	}

	raw, err := c.call(ctx, "res.users", "context_get", nil)
	if err != nil {
		return err
	}

	var userCtx struct {
		UID int64 `json:"uid"`
	}
	if err := json.Unmarshal(raw, &userCtx); err != nil || userCtx.UID == 0 {
		return fmt.Errorf("%w: could not resolve user id", odoo.ErrAuthentication)
	}

	c.mu.Lock()
	c.uid = userCtx.UID
	c.authenticated = true
	c.mu.Unlock()

	c.logger.Info("authenticated via json2", "uid", userCtx.UID, "database", c.cfg.Database)
	return nil
}

// Search returns the ids matching domain, in backend order.
func (c *Client) Search(ctx context.Context, model string, domain odoo.Domain, opts odoo.SearchOptions) ([]int64, error) {
	body := map[string]any{"domain": domain.Wire()}
	applySearchOptions(body, opts)

	raw, err := c.call(ctx, model, "search", body)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: malformed search response: %v", odoo.ErrRemoteOperation, err)
	}
	return ids, nil
}

// Read returns one record per id, preserving input order. Ids the backend
// did not return are reported via ErrNotFound.
func (c *Client) Read(ctx context.Context, model string, ids []int64, fields []string) ([]odoo.Record, error) {
	body := map[string]any{"ids": ids}
	if len(fields) > 0 {
		body["fields"] = fields
	}

	raw, err := c.call(ctx, model, "read", body)
	if err != nil {
		return nil, err
	}

	var records []odoo.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: malformed read response: %v", odoo.ErrRemoteOperation, err)
	}
	return odoo.OrderedRecords(model, ids, records)
}

// SearchRead combines search and read in one backend call.
func (c *Client) SearchRead(ctx context.Context, model string, domain odoo.Domain, fields []string, opts odoo.SearchOptions) ([]odoo.Record, error) {
	body := map[string]any{"domain": domain.Wire()}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	applySearchOptions(body, opts)

	raw, err := c.call(ctx, model, "search_read", body)
	if err != nil {
		return nil, err
	}

	var records []odoo.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: malformed search_read response: %v", odoo.ErrRemoteOperation, err)
	}
	return records, nil
}

// SearchCount returns the number of records matching domain.
func (c *Client) SearchCount(ctx context.Context, model string, domain odoo.Domain) (int, error) {
	raw, err := c.call(ctx, model, "search_count", map[string]any{"domain": domain.Wire()})
	if err != nil {
		return 0, err
	}

	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, fmt.Errorf("%w: malformed search_count response: %v", odoo.ErrRemoteOperation, err)
	}
	return count, nil
}

// FieldsGet returns field metadata for model. Full requests (attributes
// nil) are cached per model; attribute-filtered requests always hit the
// backend.
func (c *Client) FieldsGet(ctx context.Context, model string, attributes []string) (map[string]odoo.FieldMeta, error) {
	if len(attributes) == 0 {
		c.fieldsMu.Lock()
		cached, ok := c.fieldsCache[model]
		c.fieldsMu.Unlock()
		if ok {
			return cached, nil
		}
	}

	var body map[string]any
	if len(attributes) > 0 {
		body = map[string]any{"attributes": attributes}
	}

	raw, err := c.call(ctx, model, "fields_get", body)
	if err != nil {
		return nil, err
	}

	var fields map[string]odoo.FieldMeta
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: malformed fields_get response: %v", odoo.ErrRemoteOperation, err)
	}

	if len(attributes) == 0 {
		c.fieldsMu.Lock()
		c.fieldsCache[model] = fields
		c.fieldsMu.Unlock()
	}
	return fields, nil
}

// Create inserts a record. JSON/2 expects vals_list and answers with a
// list of ids; the single id is unwrapped.
func (c *Client) Create(ctx context.Context, model string, values map[string]any) (int64, error) {
	raw, err := c.call(ctx, model, "create", map[string]any{"vals_list": []any{values}})
	if err != nil {
		return 0, err
	}

	var ids []int64
	if err := json.Unmarshal(raw, &ids); err == nil && len(ids) > 0 {
		c.invalidateFields(model)
		return ids[0], nil
	}

	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, fmt.Errorf("%w: malformed create response: %v", odoo.ErrRemoteOperation, err)
	}
	c.invalidateFields(model)
	return id, nil
}

// Write updates the given records.
func (c *Client) Write(ctx context.Context, model string, ids []int64, values map[string]any) (bool, error) {
	raw, err := c.call(ctx, model, "write", map[string]any{"ids": ids, "vals": values})
	if err != nil {
		return false, err
	}
	return decodeBool(raw)
}

// Unlink deletes the given records.
func (c *Client) Unlink(ctx context.Context, model string, ids []int64) (bool, error) {
	raw, err := c.call(ctx, model, "unlink", map[string]any{"ids": ids})
	if err != nil {
		return false, err
	}
	return decodeBool(raw)
}

// UID returns the authenticated user id, or 0.
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

// IsAuthenticated reports whether Authenticate has succeeded.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Client) invalidateFields(model string) {
	c.fieldsMu.Lock()
	delete(c.fieldsCache, model)
	c.fieldsMu.Unlock()
}

// applySearchOptions copies non-zero paging arguments into the request body.
func applySearchOptions(body map[string]any, opts odoo.SearchOptions) {
	if opts.Limit > 0 {
		body["limit"] = opts.Limit
	}
	if opts.Offset > 0 {
		body["offset"] = opts.Offset
	}
	if opts.Order != "" {
		body["order"] = opts.Order
	}
}

func decodeBool(raw json.RawMessage) (bool, error) {
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		// Odoo sometimes answers write/unlink with a bare null or a
		// truthy payload; anything that is not an explicit false
		// counts as success.
		return !bytes.Equal(bytes.TrimSpace(raw), []byte("null")), nil
	}
	return ok, nil
}

// fetchVersion probes the unauthenticated version endpoint. Caller holds mu.
func (c *Client) fetchVersion(ctx context.Context) (*odoo.Version, error) {
	var version *odoo.Version
	err := odoo.RetryTransient(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/web/version", nil)
		if err != nil {
			return fmt.Errorf("%w: %v", odoo.ErrUnavailable, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", odoo.ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: version probe returned HTTP %d", odoo.ErrUnavailable, resp.StatusCode)
		}

		var v odoo.Version
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return fmt.Errorf("%w: malformed version response: %v", odoo.ErrUnavailable, err)
		}
		version = &v
		return nil
	})
	return version, err
}

// call issues one JSON/2 request: POST {base}/json/2/{model}/{method} with
// a flat named-argument body. Nil-valued arguments are omitted. Transient
// transport failures are retried once with a short backoff.
func (c *Client) call(ctx context.Context, model, method string, body map[string]any) (json.RawMessage, error) {
	c.mu.RLock()
	httpClient := c.httpClient
	c.mu.RUnlock()
	if httpClient == nil {
		return nil, odoo.ErrNotConnected
	}

	args := make(map[string]any, len(body))
	for k, v := range body {
		if v != nil {
			args[k] = v
		}
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("json2: encoding %s/%s request: %w", model, method, err)
	}

	url := fmt.Sprintf("%s/json/2/%s/%s", c.cfg.URL, model, method)

	var result json.RawMessage
	err = odoo.RetryTransient(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("%w: %v", odoo.ErrUnavailable, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		if c.cfg.Database != "" {
			req.Header.Set("X-Odoo-Database", c.cfg.Database)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %s/%s: %v", odoo.ErrUnavailable, model, method, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("%w: reading %s/%s response: %v", odoo.ErrUnavailable, model, method, err)
			}
			result = data
			return nil
		}
		return classifyStatus(resp, model, method)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
