package server

import (
	"sync/atomic"
	"time"
)

// Metrics tracks server-level counters using atomic operations for
// lock-free concurrency.
type Metrics struct {
	toolCalls    atomic.Int64
	errors       atomic.Int64
	denied       atomic.Int64
	rateLimited  atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// RecordCall records a completed tool call and its latency.
func (m *Metrics) RecordCall(latency time.Duration) {
	m.toolCalls.Add(1)
	m.totalLatency.Add(int64(latency))
}

// RecordError records a failed tool call.
func (m *Metrics) RecordError() {
	m.errors.Add(1)
}

// RecordDenied records a tool call rejected by the access engine.
func (m *Metrics) RecordDenied() {
	m.denied.Add(1)
}

// RecordRateLimited records a tool call rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Add(1)
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	calls := m.toolCalls.Load()
	snap := MetricsSnapshot{
		ToolCalls:   calls,
		Errors:      m.errors.Load(),
		Denied:      m.denied.Load(),
		RateLimited: m.rateLimited.Load(),
	}
	if calls > 0 {
		snap.AvgLatency = time.Duration(m.totalLatency.Load() / calls)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	ToolCalls   int64         `json:"tool_calls"`
	Errors      int64         `json:"errors"`
	Denied      int64         `json:"denied"`
	RateLimited int64         `json:"rate_limited"`
	AvgLatency  time.Duration `json:"avg_latency_ns"`
}
