package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ratio_watch/internal/domain"
	"ratio_watch/internal/event"
	"ratio_watch/internal/infra"
)

// scriptedFeed delivers its messages, then blocks until cancelled or
// returns failWith.
type scriptedFeed struct {
	token    string
	messages []domain.FeedMeta
	payload  domain.Payload
	failWith error
}

func (f *scriptedFeed) Consume(ctx context.Context, onData domain.FeedHandler) error {
	for _, meta := range f.messages {
		onData(meta, func() domain.Payload { return f.payload })
	}
	if f.failWith != nil {
		return f.failWith
	}
	<-ctx.Done()
	return nil
}

type feedRecorder struct {
	mu       sync.Mutex
	tokens   []string
	template scriptedFeed
}

func (r *feedRecorder) factory(token string) domain.Feed {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
	f := r.template
	f.token = token
	return &f
}

func (r *feedRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

func newTestService(rec *feedRecorder, inbox chan *event.Tick) *FeedService {
	svc := NewFeedService(rec.factory, inbox)
	svc.metrics = &infra.Metrics{}
	return svc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeedService_DispatchesTypedTicks(t *testing.T) {
	payload := map[string]any{"NSE": map[string]any{}}
	rec := &feedRecorder{template: scriptedFeed{
		payload: payload,
		messages: []domain.FeedMeta{
			{FeedType: "ltp"},
			{FeedType: "depth"},
			{FeedType: " INDEX_VALUE "},
		},
	}}
	inbox := make(chan *event.Tick, 4)
	svc := newTestService(rec, inbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx, "tok-1"); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop()

	var kinds []domain.TickKind
	for i := 0; i < 2; i++ {
		select {
		case ev := <-inbox:
			kinds = append(kinds, ev.Kind)
			if ev.Payload == nil {
				t.Error("payload not pulled")
			}
			event.ReleaseTick(ev)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for tick")
		}
	}

	if kinds[0] != domain.TickLastTradedPrice || kinds[1] != domain.TickIndexValue {
		t.Errorf("kinds = %v", kinds)
	}
	select {
	case ev := <-inbox:
		t.Errorf("unexpected extra tick %v", ev.Kind)
	default:
	}

	if !svc.Running() || !svc.metrics.FeedUp() {
		t.Error("feed should be up")
	}
	if err := svc.Start(ctx, "again"); !errors.Is(err, ErrFeedRunning) {
		t.Errorf("second Start = %v, want ErrFeedRunning", err)
	}
}

func TestFeedService_FatalErrorStopsOnlyTheFeed(t *testing.T) {
	fatal := domain.NewFatalNetworkError("dial", domain.ErrUnauthorized)
	rec := &feedRecorder{template: scriptedFeed{failWith: fatal}}
	svc := newTestService(rec, make(chan *event.Tick, 1))

	if err := svc.Start(context.Background(), "expired"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return !svc.Running() })

	if !errors.Is(svc.LastError(), domain.ErrUnauthorized) {
		t.Errorf("LastError = %v", svc.LastError())
	}
	if svc.metrics.FeedUp() {
		t.Error("feed gauge should be down")
	}

	// A stopped feed can be started again (e.g. after a token refresh).
	rec.mu.Lock()
	rec.template.failWith = nil
	rec.mu.Unlock()
	if err := svc.Restart("fresh"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	defer svc.Stop()

	waitFor(t, svc.Running)
	if svc.LastError() != nil {
		t.Errorf("LastError after restart = %v", svc.LastError())
	}
}

func TestFeedService_RestartSwapsCredential(t *testing.T) {
	rec := &feedRecorder{}
	svc := newTestService(rec, make(chan *event.Tick, 1))

	if err := svc.Restart("early"); err == nil {
		t.Error("Restart before Start must fail")
	}

	if err := svc.Start(context.Background(), "old"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Restart("new"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	defer svc.Stop()

	got := rec.seen()
	if len(got) != 2 || got[0] != "old" || got[1] != "new" {
		t.Errorf("tokens = %v", got)
	}
	if svc.metrics.Snapshot().FeedRestarts != 1 {
		t.Error("restart not counted")
	}
	waitFor(t, svc.Running)
}

func TestFeedService_StopOnParentCancel(t *testing.T) {
	rec := &feedRecorder{}
	svc := newTestService(rec, make(chan *event.Tick, 1))

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx, "tok")
	waitFor(t, svc.Running)

	cancel()
	waitFor(t, func() bool { return !svc.Running() })

	if err := svc.Restart("late"); err == nil {
		t.Error("Restart after shutdown must fail")
	}
	if svc.LastError() != nil {
		t.Errorf("clean shutdown recorded error %v", svc.LastError())
	}
}

func TestFeedService_FullInboxDoesNotBlockShutdown(t *testing.T) {
	rec := &feedRecorder{template: scriptedFeed{
		payload:  map[string]any{},
		messages: []domain.FeedMeta{{FeedType: "ltp"}, {FeedType: "ltp"}, {FeedType: "ltp"}},
	}}
	// unbuffered and never drained
	svc := newTestService(rec, make(chan *event.Tick))

	svc.Start(context.Background(), "tok")

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a full inbox")
	}
}
