package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ratio_watch/internal/domain"
	"ratio_watch/internal/event"
	"ratio_watch/internal/infra"
)

// ErrFeedRunning is returned by Start when a feed loop is already active.
var ErrFeedRunning = errors.New("feed already running")

// FeedService owns the feed goroutine: it turns feed callbacks into typed
// ticks for the reducer inbox and swaps the session when the credential
// changes. Reducer state is never touched here.
type FeedService struct {
	factory domain.FeedFactory
	inbox   chan<- *event.Tick
	metrics *infra.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// errMu is separate from mu: a session records its error while Restart
	// holds mu and waits for that session to exit.
	errMu   sync.Mutex
	lastErr error
}

// NewFeedService creates a service feeding inbox with sessions built by factory.
func NewFeedService(factory domain.FeedFactory, inbox chan<- *event.Tick) *FeedService {
	return &FeedService{
		factory: factory,
		inbox:   inbox,
		metrics: infra.GlobalMetrics,
		logger:  slog.Default().With("module", "feed_service"),
	}
}

// Start runs a feed session for token until ctx is done or the feed fails.
func (s *FeedService) Start(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
		default:
			return ErrFeedRunning
		}
	}

	s.parent = ctx
	s.startLocked(token)
	return nil
}

// Restart stops the running session, waits for it to exit and starts a new
// one with token.
func (s *FeedService) Restart(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.parent == nil {
		return errors.New("feed service not started")
	}
	if err := s.parent.Err(); err != nil {
		return fmt.Errorf("feed service shut down: %w", err)
	}

	s.stopLocked()
	s.startLocked(token)
	s.metrics.RecordFeedRestart()
	s.logger.Info("Feed restarted with new credential")
	return nil
}

// Stop cancels the running session and waits for it to exit.
func (s *FeedService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Running reports whether a session goroutine is active.
func (s *FeedService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// LastError returns the error that ended the most recent session, if any.
func (s *FeedService) LastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// Must be called with lock held
func (s *FeedService) startLocked(token string) {
	ctx, cancel := context.WithCancel(s.parent)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.setErr(nil)

	go s.run(ctx, s.factory(token), done)
}

// Must be called with lock held
func (s *FeedService) stopLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

func (s *FeedService) run(ctx context.Context, feed domain.Feed, done chan struct{}) {
	defer close(done)

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("feed panic: %v", r)
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
		}
		s.metrics.SetFeedState(false)
		s.setErr(err)
	}()

	s.metrics.SetFeedState(true)
	s.logger.Info("Feed started")

	err = feed.Consume(ctx, func(meta domain.FeedMeta, latest func() domain.Payload) {
		s.dispatch(ctx, meta, latest)
	})

	switch {
	case err != nil:
		// The snapshot keeps being served; only a credential refresh revives the feed.
		s.logger.Error("Feed stopped", slog.Any("error", err), slog.Bool("retriable", domain.IsRetriable(err)))
	default:
		s.logger.Info("Feed stopped")
	}
}

func (s *FeedService) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.lastErr = err
}

// dispatch maps one feed callback to a typed tick and hands it to the reducer.
func (s *FeedService) dispatch(ctx context.Context, meta domain.FeedMeta, latest func() domain.Payload) {
	kind := domain.ParseTickKind(meta.FeedType)
	if kind == domain.TickUnknown {
		s.logger.Debug("Ignoring feed message", slog.String("feed_type", meta.FeedType))
		return
	}

	ev := event.AcquireTick(kind, latest())
	select {
	case s.inbox <- ev:
	case <-ctx.Done():
		event.ReleaseTick(ev)
	}
}
