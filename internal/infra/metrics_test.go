package infra

import (
	"errors"
	"testing"
)

func TestMetrics_RecordEvent(t *testing.T) {
	m := &Metrics{}

	m.RecordEvent(1000)
	m.RecordEvent(2000)
	m.RecordEvent(3000)

	snap := m.Snapshot()

	if snap.TicksApplied != 3 {
		t.Errorf("Expected 3 ticks, got %d", snap.TicksApplied)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_Clients(t *testing.T) {
	m := &Metrics{}

	m.IncrementClients()
	m.IncrementClients()
	m.IncrementClients()

	if got := m.Snapshot().PushClients; got != 3 {
		t.Errorf("Expected 3 clients, got %d", got)
	}

	m.DecrementClients()
	if got := m.Snapshot().PushClients; got != 2 {
		t.Errorf("Expected 2 clients, got %d", got)
	}
}

func TestMetrics_Mirror(t *testing.T) {
	m := &Metrics{}

	m.RecordMirrorPush(nil)
	m.RecordMirrorPush(errors.New("quota exceeded"))
	m.RecordMirrorThrottled()

	snap := m.Snapshot()
	if snap.MirrorPushes != 2 || snap.MirrorErrors != 1 || snap.MirrorThrottled != 1 {
		t.Errorf("unexpected mirror metrics: %+v", snap)
	}
}

func TestMetrics_FeedState(t *testing.T) {
	m := &Metrics{}

	if m.FeedUp() {
		t.Error("Expected feed down initially")
	}

	m.SetFeedState(true)
	if !m.Snapshot().FeedUp {
		t.Error("Expected feed up")
	}

	m.SetFeedState(false)
	if m.FeedUp() {
		t.Error("Expected feed down")
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordEvent(1000)
	m.RecordDropped()
	m.RecordCrossing()
	m.IncrementClients()

	m.Reset()
	snap := m.Snapshot()

	if snap.TicksApplied != 0 || snap.TicksDropped != 0 || snap.Crossings != 0 {
		t.Errorf("Expected zero counters after reset, got %+v", snap)
	}
	if snap.PushClients != 0 {
		t.Error("Expected 0 clients after reset")
	}
}
