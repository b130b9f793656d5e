package service

import (
	"log/slog"
	"sync"

	"ratio_watch/internal/domain"
)

// Publisher fans every snapshot out to its subscribers in registration order.
// Subscribers must not block; a panicking subscriber is logged and skipped.
type Publisher struct {
	mu     sync.RWMutex
	subs   []domain.SnapshotSubscriber
	logger *slog.Logger
}

// NewPublisher creates a publisher with optional initial subscribers.
func NewPublisher(subs ...domain.SnapshotSubscriber) *Publisher {
	return &Publisher{
		subs:   subs,
		logger: slog.Default().With("module", "publisher"),
	}
}

// Subscribe adds sub.
func (p *Publisher) Subscribe(sub domain.SnapshotSubscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, sub)
}

// Publish delivers snap to every subscriber.
func (p *Publisher) Publish(snap domain.Snapshot) {
	p.mu.RLock()
	subs := p.subs
	p.mu.RUnlock()

	for _, sub := range subs {
		p.deliver(sub, snap)
	}
}

func (p *Publisher) deliver(sub domain.SnapshotSubscriber, snap domain.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Subscriber panic recovered", slog.Any("panic", r))
		}
	}()
	sub.OnSnapshot(snap)
}
