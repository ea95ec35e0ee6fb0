package security

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types covering every security-relevant interaction with
// the backend.
const (
	EventToolCall     EventType = "tool_call"
	EventToolError    EventType = "tool_error"
	EventAuthSuccess  EventType = "auth_success"
	EventAuthFailure  EventType = "auth_failure"
	EventAccessDenied EventType = "access_denied"
	EventRecordCreate EventType = "record_create"
	EventRecordWrite  EventType = "record_write"
	EventRecordUnlink EventType = "record_unlink"
	EventConnection   EventType = "connection"
	EventRateLimit    EventType = "rate_limit"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Actor     string            `json:"actor,omitempty"`
	Model     string            `json:"model,omitempty"`
	Operation string            `json:"operation,omitempty"`
	RecordIDs []int64           `json:"record_ids,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives every audit event after redaction. Implemented by the
// SQLite event store. Failures are ignored: auditing must never fail a
// tool call.
type Sink interface {
	Record(event AuditEvent) error
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer is the destination for JSONL output. Nil disables file
	// output (events still reach the Sink and OnEvent).
	Writer io.Writer

	// Sink, if non-nil, receives every event after redaction.
	Sink Sink

	// Redactor, if non-nil, is applied to Detail and Metadata values.
	Redactor *Redactor

	// OnEvent, if non-nil, is called for every event (used in tests).
	OnEvent func(AuditEvent)

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// AuditLogger writes structured audit events as JSONL with redaction,
// fanning them out to an optional persistent sink.
type AuditLogger struct {
	writer   io.Writer
	sink     Sink
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
	mu       sync.Mutex
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		sink:     cfg.Sink,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// Log writes an audit event. The timestamp is set here; the caller's
// Metadata map is copied, never mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now()

	if len(event.Metadata) > 0 {
		cp := make(map[string]string, len(event.Metadata))
		for k, v := range event.Metadata {
			cp[k] = v
		}
		event.Metadata = cp
	}

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	// One lock covers callback, sink, and writer so event order is
	// consistent across all three.
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.sink != nil {
		_ = l.sink.Record(event)
	}
	if l.writer != nil {
		_ = json.NewEncoder(l.writer).Encode(event)
	}
}
