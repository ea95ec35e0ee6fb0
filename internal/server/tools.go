package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pantalytics/odoo-mcp-pro/internal/access"
	"github.com/pantalytics/odoo-mcp-pro/internal/oauth"
	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
	"github.com/pantalytics/odoo-mcp-pro/internal/security"
)

// registerTools adds every tool to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "search_records",
		Description: "Search an Odoo model with a domain expression. Returns matching records plus the total match count.",
	}, s.handleSearch)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get_record",
		Description: "Read specific records by id. Returns one record per requested id, in order.",
	}, s.handleGet)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "list_models",
		Description: "List the models available through this server and the operations permitted on each.",
	}, s.handleListModels)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "create_record",
		Description: "Create a record. Returns the new record id.",
	}, s.handleCreate)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "update_record",
		Description: "Update fields on existing records.",
	}, s.handleUpdate)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "delete_record",
		Description: "Delete records by id. Irreversible.",
	}, s.handleDelete)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get_schema",
		Description: "Return field metadata for a model: types, labels, required and readonly flags, relations.",
	}, s.handleSchema)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "server_info",
		Description: "Return server identity, backend version, access mode, and usage counters.",
	}, s.handleInfo)
}

// --- Input/Output types ---

// SearchInput defines parameters for the search_records tool.
type SearchInput struct {
	Model  string   `json:"model" jsonschema:"technical model name, e.g. res.partner"`
	Domain []any    `json:"domain,omitempty" jsonschema:"domain expression in list form, e.g. [[\"is_company\",\"=\",true]]"`
	Fields []string `json:"fields,omitempty" jsonschema:"fields to return, omit for all"`
	Limit  int      `json:"limit,omitempty" jsonschema:"maximum records to return"`
	Offset int      `json:"offset,omitempty" jsonschema:"records to skip before returning results"`
	Order  string   `json:"order,omitempty" jsonschema:"sort specification, e.g. \"name asc\""`
}

// SearchOutput contains matching records and paging information.
type SearchOutput struct {
	Model   string        `json:"model"`
	Records []odoo.Record `json:"records"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset,omitempty"`
}

// GetInput defines parameters for the get_record tool.
type GetInput struct {
	Model  string   `json:"model" jsonschema:"technical model name"`
	IDs    []int64  `json:"ids" jsonschema:"record ids to read"`
	Fields []string `json:"fields,omitempty" jsonschema:"fields to return, omit for all"`
}

// GetOutput contains one record per requested id, in request order.
type GetOutput struct {
	Model   string        `json:"model"`
	Records []odoo.Record `json:"records"`
}

// ListModelsInput is empty.
type ListModelsInput struct{}

// ModelSummary describes one model and the operations permitted on it.
type ModelSummary struct {
	Model  string `json:"model"`
	Name   string `json:"name,omitempty"`
	Read   bool   `json:"read"`
	Write  bool   `json:"write"`
	Create bool   `json:"create"`
	Unlink bool   `json:"unlink"`
}

// ListModelsOutput lists available models.
type ListModelsOutput struct {
	Models []ModelSummary `json:"models"`
}

// CreateInput defines parameters for the create_record tool.
type CreateInput struct {
	Model  string         `json:"model" jsonschema:"technical model name"`
	Values map[string]any `json:"values" jsonschema:"field values for the new record"`
}

// CreateOutput reports the created record id.
type CreateOutput struct {
	Model string `json:"model"`
	ID    int64  `json:"id"`
}

// UpdateInput defines parameters for the update_record tool.
type UpdateInput struct {
	Model  string         `json:"model" jsonschema:"technical model name"`
	IDs    []int64        `json:"ids" jsonschema:"record ids to update"`
	Values map[string]any `json:"values" jsonschema:"field values to write"`
}

// UpdateOutput confirms the update.
type UpdateOutput struct {
	Model   string `json:"model"`
	Updated bool   `json:"updated"`
	Count   int    `json:"count"`
}

// DeleteInput defines parameters for the delete_record tool.
type DeleteInput struct {
	Model string  `json:"model" jsonschema:"technical model name"`
	IDs   []int64 `json:"ids" jsonschema:"record ids to delete"`
}

// DeleteOutput confirms the deletion.
type DeleteOutput struct {
	Model   string `json:"model"`
	Deleted bool   `json:"deleted"`
	Count   int    `json:"count"`
}

// SchemaInput defines parameters for the get_schema tool.
type SchemaInput struct {
	Model  string   `json:"model" jsonschema:"technical model name"`
	Fields []string `json:"fields,omitempty" jsonschema:"restrict output to these fields"`
}

// SchemaOutput contains field metadata keyed by field name.
type SchemaOutput struct {
	Model  string                    `json:"model"`
	Fields map[string]odoo.FieldMeta `json:"fields"`
}

// InfoInput is empty.
type InfoInput struct{}

// InfoOutput describes the running server.
type InfoOutput struct {
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	Dialect       string          `json:"dialect"`
	Database      string          `json:"database"`
	ServerVersion *odoo.Version   `json:"server_version,omitempty"`
	UID           int64           `json:"uid"`
	AccessMode    string          `json:"access_mode"`
	Metrics       MetricsSnapshot `json:"metrics"`
}

// --- Shared gating ---

// begin runs the pre-flight gate for a tool call: rate limiter first,
// then the access engine. Audit events are emitted for rejections here;
// the handler owns events for what happens after the gate.
func (s *Server) begin(ctx context.Context, model string, op access.Operation) error {
	if err := s.limiter.Allow(security.BucketToolCall); err != nil {
		s.metrics.RecordRateLimited()
		s.audit.Log(security.AuditEvent{
			Type:      security.EventRateLimit,
			Actor:     actor(ctx),
			Model:     model,
			Operation: string(op),
		})
		return err
	}

	if err := s.engine.Check(ctx, model, op); err != nil {
		if errors.Is(err, odoo.ErrAccessDenied) {
			s.metrics.RecordDenied()
			s.audit.Log(security.AuditEvent{
				Type:      security.EventAccessDenied,
				Actor:     actor(ctx),
				Model:     model,
				Operation: string(op),
				Detail:    err.Error(),
			})
		}
		return err
	}
	return nil
}

// finish records metrics and the per-call audit trail for a completed
// handler body.
func (s *Server) finish(ctx context.Context, tool, model string, start time.Time, err error) {
	s.metrics.RecordCall(time.Since(start))
	if err != nil {
		s.metrics.RecordError()
		s.audit.Log(security.AuditEvent{
			Type:   security.EventToolError,
			Actor:  actor(ctx),
			Model:  model,
			Detail: err.Error(),
			Metadata: map[string]string{
				"tool": tool,
			},
		})
		return
	}
	s.audit.Log(security.AuditEvent{
		Type:  security.EventToolCall,
		Actor: actor(ctx),
		Model: model,
		Metadata: map[string]string{
			"tool": tool,
		},
	})
}

// parseDomain converts the list-form domain from tool input into the
// typed grammar and validates its operators.
func parseDomain(raw []any) (odoo.Domain, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, invalidInput("domain: %v", err)
	}
	var domain odoo.Domain
	if err := json.Unmarshal(encoded, &domain); err != nil {
		return nil, invalidInput("domain: %v", err)
	}
	if err := domain.Validate(); err != nil {
		return nil, invalidInput("domain: %v", err)
	}
	return domain, nil
}

// clampLimit applies the configured result shaping: zero or negative
// requests fall back to the default, oversized requests are capped.
func (s *Server) clampLimit(requested int) int {
	if requested <= 0 {
		return s.cfg.Server.DefaultLimit
	}
	if requested > s.cfg.Server.MaxLimit {
		return s.cfg.Server.MaxLimit
	}
	return requested
}

// --- Handlers ---

func (s *Server) handleSearch(ctx context.Context, _ *mcpsdk.CallToolRequest, in SearchInput) (result *mcpsdk.CallToolResult, out SearchOutput, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "search_records", in.Model, start, err) }()

	if in.Model == "" {
		return nil, out, invalidInput("model is required")
	}
	if err := s.begin(ctx, in.Model, access.OpRead); err != nil {
		return nil, out, s.surface(err)
	}

	domain, err := parseDomain(in.Domain)
	if err != nil {
		return nil, out, err
	}

	limit := s.clampLimit(in.Limit)
	records, err := s.conn.SearchRead(ctx, in.Model, domain, in.Fields, odoo.SearchOptions{
		Limit:  limit,
		Offset: in.Offset,
		Order:  in.Order,
	})
	if err != nil {
		return nil, out, s.surface(err)
	}

	total, err := s.conn.SearchCount(ctx, in.Model, domain)
	if err != nil {
		return nil, out, s.surface(err)
	}

	out = SearchOutput{
		Model:   in.Model,
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  in.Offset,
	}
	return nil, out, nil
}

func (s *Server) handleGet(ctx context.Context, _ *mcpsdk.CallToolRequest, in GetInput) (result *mcpsdk.CallToolResult, out GetOutput, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "get_record", in.Model, start, err) }()

	if in.Model == "" {
		return nil, out, invalidInput("model is required")
	}
	if len(in.IDs) == 0 {
		return nil, out, invalidInput("at least one id is required")
	}
	if err := s.begin(ctx, in.Model, access.OpRead); err != nil {
		return nil, out, s.surface(err)
	}

	records, err := s.conn.Read(ctx, in.Model, in.IDs, in.Fields)
	if err != nil {
		return nil, out, s.surface(err)
	}

	out = GetOutput{Model: in.Model, Records: records}
	return nil, out, nil
}

func (s *Server) handleListModels(ctx context.Context, _ *mcpsdk.CallToolRequest, _ ListModelsInput) (result *mcpsdk.CallToolResult, out ListModelsOutput, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "list_models", "", start, err) }()

	if err := s.limiter.Allow(security.BucketToolCall); err != nil {
		s.metrics.RecordRateLimited()
		return nil, out, s.surface(err)
	}

	summaries, err := s.listModels(ctx)
	if err != nil {
		return nil, out, s.surface(err)
	}

	out = ListModelsOutput{Models: summaries}
	return nil, out, nil
}

// listModels answers from the dedicated access endpoint when the engine
// delegates, and from the backend model registry otherwise.
func (s *Server) listModels(ctx context.Context) ([]ModelSummary, error) {
	if s.models != nil {
		infos, err := s.models.ListModels(ctx)
		if err != nil {
			return nil, err
		}
		summaries := make([]ModelSummary, 0, len(infos))
		for _, info := range infos {
			perms, err := s.engine.Permissions(ctx, info.Model)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, ModelSummary{
				Model:  info.Model,
				Name:   info.Name,
				Read:   perms.Read,
				Write:  perms.Write,
				Create: perms.Create,
				Unlink: perms.Unlink,
			})
		}
		return summaries, nil
	}

	records, err := s.conn.SearchRead(ctx, "ir.model", nil, []string{"model", "name"}, odoo.SearchOptions{Order: "model"})
	if err != nil {
		return nil, err
	}
	summaries := make([]ModelSummary, 0, len(records))
	for _, rec := range records {
		model, _ := rec["model"].(string)
		if model == "" {
			continue
		}
		name, _ := rec["name"].(string)
		perms, err := s.engine.Permissions(ctx, model)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ModelSummary{
			Model:  model,
			Name:   name,
			Read:   perms.Read,
			Write:  perms.Write,
			Create: perms.Create,
			Unlink: perms.Unlink,
		})
	}
	return summaries, nil
}

func (s *Server) handleCreate(ctx context.Context, _ *mcpsdk.CallToolRequest, in CreateInput) (result *mcpsdk.CallToolResult, out CreateOutput, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "create_record", in.Model, start, err) }()

	if in.Model == "" {
		return nil, out, invalidInput("model is required")
	}
	if len(in.Values) == 0 {
		return nil, out, invalidInput("values are required")
	}
	if err := s.begin(ctx, in.Model, access.OpCreate); err != nil {
		return nil, out, s.surface(err)
	}

	id, err := s.conn.Create(ctx, in.Model, in.Values)
	if err != nil {
		return nil, out, s.surface(err)
	}

	s.audit.Log(security.AuditEvent{
		Type:      security.EventRecordCreate,
		Actor:     actor(ctx),
		Model:     in.Model,
		Operation: string(access.OpCreate),
		RecordIDs: []int64{id},
	})
	out = CreateOutput{Model: in.Model, ID: id}
	return nil, out, nil
}

func (s *Server) handleUpdate(ctx context.Context, _ *mcpsdk.CallToolRequest, in UpdateInput) (result *mcpsdk.CallToolResult, out UpdateOutput, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "update_record", in.Model, start, err) }()

	if in.Model == "" {
		return nil, out, invalidInput("model is required")
	}
	if len(in.IDs) == 0 {
		return nil, out, invalidInput("at least one id is required")
	}
	if len(in.Values) == 0 {
		return nil, out, invalidInput("values are required")
	}
	if err := s.begin(ctx, in.Model, access.OpWrite); err != nil {
		return nil, out, s.surface(err)
	}

	ok, err := s.conn.Write(ctx, in.Model, in.IDs, in.Values)
	if err != nil {
		return nil, out, s.surface(err)
	}

	s.audit.Log(security.AuditEvent{
		Type:      security.EventRecordWrite,
		Actor:     actor(ctx),
		Model:     in.Model,
		Operation: string(access.OpWrite),
		RecordIDs: in.IDs,
	})
	out = UpdateOutput{Model: in.Model, Updated: ok, Count: len(in.IDs)}
	return nil, out, nil
}

func (s *Server) handleDelete(ctx context.Context, _ *mcpsdk.CallToolRequest, in DeleteInput) (result *mcpsdk.CallToolResult, out DeleteOutput, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "delete_record", in.Model, start, err) }()

	if in.Model == "" {
		return nil, out, invalidInput("model is required")
	}
	if len(in.IDs) == 0 {
		return nil, out, invalidInput("at least one id is required")
	}
	if err := s.begin(ctx, in.Model, access.OpUnlink); err != nil {
		return nil, out, s.surface(err)
	}

	ok, err := s.conn.Unlink(ctx, in.Model, in.IDs)
	if err != nil {
		return nil, out, s.surface(err)
	}

	s.audit.Log(security.AuditEvent{
		Type:      security.EventRecordUnlink,
		Actor:     actor(ctx),
		Model:     in.Model,
		Operation: string(access.OpUnlink),
		RecordIDs: in.IDs,
	})
	out = DeleteOutput{Model: in.Model, Deleted: ok, Count: len(in.IDs)}
	return nil, out, nil
}

func (s *Server) handleSchema(ctx context.Context, _ *mcpsdk.CallToolRequest, in SchemaInput) (result *mcpsdk.CallToolResult, out SchemaOutput, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "get_schema", in.Model, start, err) }()

	if in.Model == "" {
		return nil, out, invalidInput("model is required")
	}
	if err := s.begin(ctx, in.Model, access.OpRead); err != nil {
		return nil, out, s.surface(err)
	}

	fields, err := s.conn.FieldsGet(ctx, in.Model, nil)
	if err != nil {
		return nil, out, s.surface(err)
	}

	if len(in.Fields) > 0 {
		filtered := make(map[string]odoo.FieldMeta, len(in.Fields))
		for _, name := range in.Fields {
			if meta, ok := fields[name]; ok {
				filtered[name] = meta
			}
		}
		fields = filtered
	}

	out = SchemaOutput{Model: in.Model, Fields: fields}
	return nil, out, nil
}

func (s *Server) handleInfo(ctx context.Context, _ *mcpsdk.CallToolRequest, _ InfoInput) (result *mcpsdk.CallToolResult, out InfoOutput, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "server_info", "", start, err) }()

	if err := s.limiter.Allow(security.BucketToolCall); err != nil {
		s.metrics.RecordRateLimited()
		return nil, out, s.surface(err)
	}

	out = InfoOutput{
		Name:          serverName,
		Version:       s.version,
		Dialect:       s.dialect,
		Database:      s.conn.Database(),
		ServerVersion: s.conn.ServerVersion(),
		UID:           s.conn.UID(),
		AccessMode:    string(s.engine.Mode()),
		Metrics:       s.metrics.Snapshot(),
	}
	return nil, out, nil
}

// actor names the caller for audit purposes: the verified token subject
// on the http transport, the local process otherwise.
func actor(ctx context.Context) string {
	if id, ok := oauth.IdentityFrom(ctx); ok {
		return id.Subject
	}
	return "local"
}
