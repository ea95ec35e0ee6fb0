package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pantalytics/odoo-mcp-pro/internal/security"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordAndQuery(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	stamp := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := store.Record(security.AuditEvent{
		Timestamp: stamp,
		Type:      security.EventAuthFailure,
		Actor:     "local",
		Model:     "res.users",
		Operation: "authenticate",
		Detail:    "backend rejected the configured credentials",
		Metadata:  map[string]string{"dialect": "json2"},
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	events, err := store.RecentFailures(t.Context(), 10)
	if err != nil {
		t.Fatalf("RecentFailures() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	got := events[0]
	if got.Type != security.EventAuthFailure || got.Actor != "local" {
		t.Fatalf("event = %+v", got)
	}
	if !got.Timestamp.Equal(stamp) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, stamp)
	}
	if got.Metadata["dialect"] != "json2" {
		t.Fatalf("metadata = %v", got.Metadata)
	}
}

func TestStore_RecentFailuresFiltersAndOrders(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seed := []security.AuditEvent{
		{Type: security.EventToolCall, Operation: "search_records"},
		{Type: security.EventToolError, Operation: "create_record", Detail: "first"},
		{Type: security.EventRecordWrite, Model: "res.partner"},
		{Type: security.EventAccessDenied, Model: "account.move", Detail: "second"},
		{Type: security.EventRateLimit, Detail: "third"},
	}
	for i, event := range seed {
		event.Timestamp = base.Add(time.Duration(i) * time.Second)
		if err := store.Record(event); err != nil {
			t.Fatalf("Record() #%d error = %v", i, err)
		}
	}

	events, err := store.RecentFailures(t.Context(), 10)
	if err != nil {
		t.Fatalf("RecentFailures() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (successes filtered out)", len(events))
	}

	// Newest first.
	want := []string{"third", "second", "first"}
	for i, detail := range want {
		if events[i].Detail != detail {
			t.Fatalf("events[%d].Detail = %q, want %q", i, events[i].Detail, detail)
		}
	}
}

func TestStore_RecentFailuresLimit(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	for i := 0; i < 8; i++ {
		event := security.AuditEvent{
			Timestamp: time.Now().UTC(),
			Type:      security.EventToolError,
		}
		if err := store.Record(event); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	events, err := store.RecentFailures(t.Context(), 3)
	if err != nil {
		t.Fatalf("RecentFailures() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	// Non-positive limits fall back to the default of five.
	events, err = store.RecentFailures(t.Context(), 0)
	if err != nil {
		t.Fatalf("RecentFailures() error = %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
}

func TestStore_OpenCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	if err := store.Record(security.AuditEvent{Timestamp: time.Now(), Type: security.EventConnection}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
}
