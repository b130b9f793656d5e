package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ratio_watch/internal/domain"
	"ratio_watch/internal/infra"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// Mirror copies snapshots to external sinks at most once per interval.
// Snapshots offered inside the interval are dropped; the next one after it
// carries the latest state. Failures are logged and never reach the caller.
type Mirror struct {
	sinks    []domain.SnapshotSink
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastPush time.Time

	wg      sync.WaitGroup
	metrics *infra.Metrics
	logger  *slog.Logger
}

// New creates a mirror over sinks. Non-positive durations use the defaults.
func New(interval, timeout time.Duration, sinks ...domain.SnapshotSink) *Mirror {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Mirror{
		sinks:    sinks,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
		metrics:  infra.GlobalMetrics,
		logger:   slog.Default().With("module", "mirror"),
	}
}

// Enabled reports whether any sink is configured.
func (m *Mirror) Enabled() bool { return len(m.sinks) > 0 }

// OnSnapshot implements domain.SnapshotSubscriber.
func (m *Mirror) OnSnapshot(snap domain.Snapshot) { m.Offer(snap) }

// Offer starts a push of snap unless one was started less than the interval
// ago. It never blocks on the sinks and reports whether a push was started.
func (m *Mirror) Offer(snap domain.Snapshot) bool {
	if len(m.sinks) == 0 {
		return false
	}

	m.mu.Lock()
	now := m.now()
	if !m.lastPush.IsZero() && now.Sub(m.lastPush) < m.interval {
		m.mu.Unlock()
		m.metrics.RecordMirrorThrottled()
		return false
	}
	m.lastPush = now
	m.mu.Unlock()

	for _, sink := range m.sinks {
		m.wg.Add(1)
		go m.push(sink, snap)
	}
	return true
}

func (m *Mirror) push(sink domain.SnapshotSink, snap domain.Snapshot) {
	defer m.wg.Done()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			m.logger.Error("Mirror push panic recovered", slog.String("sink", sink.Name()), slog.Any("panic", r))
		}
		m.metrics.RecordMirrorPush(err)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err = sink.Push(ctx, snap); err != nil {
		m.logger.Warn("Mirror push failed", slog.String("sink", sink.Name()), slog.Any("error", err))
	}
}

// Wait blocks until in-flight pushes finish.
func (m *Mirror) Wait() {
	m.wg.Wait()
}
