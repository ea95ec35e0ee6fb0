package security

import (
	"context"
	"log/slog"
)

// RedactingHandler wraps a slog.Handler and scrubs secrets from the
// message and every string-valued attribute before the inner handler sees
// them, no matter where the log call originates.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
	attrs    []slog.Attr
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler creates a handler applying redactor to everything
// written through inner.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: redactor}
}

// Enabled delegates to the inner handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle rebuilds the record with redacted message and attributes.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	clean.AddAttrs(h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs returns a handler with the given attributes pre-redacted.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{
		inner:    h.inner.WithAttrs(redacted),
		redactor: h.redactor,
	}
}

// WithGroup returns a handler scoped to the given group name.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{
		inner:    h.inner.WithGroup(name),
		redactor: h.redactor,
		attrs:    h.attrs,
	}
}

// redactAttr scrubs string values, including inside groups. Non-string
// values pass through: secrets enter logs as strings.
func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redactor.Redact(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]any, 0, len(group))
		for _, ga := range group {
			clean = append(clean, h.redactAttr(ga))
		}
		return slog.Group(a.Key, clean...)
	default:
		return a
	}
}
