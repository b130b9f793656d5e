package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ticksApplied   atomic.Uint64
	ticksDropped   atomic.Uint64
	crossings      atomic.Uint64
	mirrorPushes   atomic.Uint64
	mirrorErrors   atomic.Uint64
	mirrorThrottle atomic.Uint64
	feedRestarts   atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	pushClients atomic.Int32
	feedUp      atomic.Int32 // 1 = consuming, 0 = stopped
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records an applied tick with its processing latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.ticksApplied.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordDropped records a tick that did not change state.
func (m *Metrics) RecordDropped() {
	m.ticksDropped.Add(1)
}

// RecordCrossing records one band crossing on either series.
func (m *Metrics) RecordCrossing() {
	m.crossings.Add(1)
}

// RecordMirrorPush records a mirror attempt and whether it failed.
func (m *Metrics) RecordMirrorPush(err error) {
	m.mirrorPushes.Add(1)
	if err != nil {
		m.mirrorErrors.Add(1)
	}
}

// RecordMirrorThrottled records a snapshot skipped by the mirror throttle.
func (m *Metrics) RecordMirrorThrottled() {
	m.mirrorThrottle.Add(1)
}

// RecordFeedRestart records a feed restart after a credential refresh.
func (m *Metrics) RecordFeedRestart() {
	m.feedRestarts.Add(1)
}

// IncrementClients increments connected push clients by 1.
func (m *Metrics) IncrementClients() {
	m.pushClients.Add(1)
}

// DecrementClients decrements connected push clients by 1.
func (m *Metrics) DecrementClients() {
	m.pushClients.Add(-1)
}

// SetFeedState sets whether the feed loop is consuming.
func (m *Metrics) SetFeedState(up bool) {
	if up {
		m.feedUp.Store(1)
	} else {
		m.feedUp.Store(0)
	}
}

// FeedUp reports whether the feed loop is consuming.
func (m *Metrics) FeedUp() bool {
	return m.feedUp.Load() == 1
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TicksApplied    uint64    `json:"ticks_applied"`
	TicksDropped    uint64    `json:"ticks_dropped"`
	Crossings       uint64    `json:"crossings"`
	MirrorPushes    uint64    `json:"mirror_pushes"`
	MirrorErrors    uint64    `json:"mirror_errors"`
	MirrorThrottled uint64    `json:"mirror_throttled"`
	FeedRestarts    uint64    `json:"feed_restarts"`
	AvgLatencyNs    int64     `json:"avg_latency_ns"`
	PushClients     int32     `json:"push_clients"`
	FeedUp          bool      `json:"feed_up"`
	Timestamp       time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		TicksApplied:    m.ticksApplied.Load(),
		TicksDropped:    m.ticksDropped.Load(),
		Crossings:       m.crossings.Load(),
		MirrorPushes:    m.mirrorPushes.Load(),
		MirrorErrors:    m.mirrorErrors.Load(),
		MirrorThrottled: m.mirrorThrottle.Load(),
		FeedRestarts:    m.feedRestarts.Load(),
		AvgLatencyNs:    avgLatency,
		PushClients:     m.pushClients.Load(),
		FeedUp:          m.feedUp.Load() == 1,
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.ticksApplied.Store(0)
	m.ticksDropped.Store(0)
	m.crossings.Store(0)
	m.mirrorPushes.Store(0)
	m.mirrorErrors.Store(0)
	m.mirrorThrottle.Store(0)
	m.feedRestarts.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.pushClients.Store(0)
	m.feedUp.Store(0)
}
