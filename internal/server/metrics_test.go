package server

import (
	"testing"
	"time"
)

func TestMetrics_Snapshot(t *testing.T) {
	t.Parallel()

	m := &Metrics{}
	m.RecordCall(100 * time.Millisecond)
	m.RecordCall(300 * time.Millisecond)
	m.RecordError()
	m.RecordDenied()
	m.RecordRateLimited()

	snap := m.Snapshot()
	if snap.ToolCalls != 2 || snap.Errors != 1 || snap.Denied != 1 || snap.RateLimited != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.AvgLatency != 200*time.Millisecond {
		t.Fatalf("avg latency = %v, want 200ms", snap.AvgLatency)
	}
}

func TestMetrics_EmptySnapshot(t *testing.T) {
	t.Parallel()

	snap := (&Metrics{}).Snapshot()
	if snap.ToolCalls != 0 || snap.AvgLatency != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
