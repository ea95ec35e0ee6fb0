package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newRedactingLogger(t *testing.T, r *Redactor) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandler_ScrubsMessageAndAttrs(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("api-key-1234")

	logger, buf := newRedactingLogger(t, r)
	logger.Info("auth with api-key-1234 failed", "key", "api-key-1234", "attempt", 3)

	out := buf.String()
	if strings.Contains(out, "api-key-1234") {
		t.Fatalf("log output %q contains secret", out)
	}
	if !strings.Contains(out, RedactPlaceholder) {
		t.Fatalf("log output %q missing placeholder", out)
	}
	if !strings.Contains(out, "attempt=3") {
		t.Fatalf("log output %q lost non-string attr", out)
	}
}

func TestRedactingHandler_WithAttrsPreRedacts(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("secret-value")

	logger, buf := newRedactingLogger(t, r)
	logger.With("token", "secret-value").Info("request handled")

	if strings.Contains(buf.String(), "secret-value") {
		t.Fatalf("log output %q contains secret from With()", buf.String())
	}
}

func TestRedactingHandler_GroupsAreRecursive(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("nested-secret")

	logger, buf := newRedactingLogger(t, r)
	logger.Info("done", slog.Group("backend", slog.String("key", "nested-secret")))

	if strings.Contains(buf.String(), "nested-secret") {
		t.Fatalf("log output %q contains secret inside group", buf.String())
	}
}

func TestRedactingHandler_WithGroupStillScrubs(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("grouped-secret")

	logger, buf := newRedactingLogger(t, r)
	logger.WithGroup("odoo").Info("connect", "password", "grouped-secret")

	if strings.Contains(buf.String(), "grouped-secret") {
		t.Fatalf("log output %q contains secret under group", buf.String())
	}
}
