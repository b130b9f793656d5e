package domain

import "context"

// FeedHandler is invoked once per incoming feed message. latest pulls the most
// recently decoded payload for the message's channel.
type FeedHandler func(meta FeedMeta, latest func() Payload)

// Feed is a market-data session producing tick callbacks.
type Feed interface {
	// Consume subscribes and blocks, invoking onData per message, until ctx is
	// done (returns nil) or the session fails for good.
	Consume(ctx context.Context, onData FeedHandler) error
}

// FeedFactory builds a Feed bound to an access token.
type FeedFactory func(accessToken string) Feed

// SnapshotSubscriber receives every published snapshot. Implementations must
// not block.
type SnapshotSubscriber interface {
	OnSnapshot(snap Snapshot)
}

// SnapshotSubscriberFunc adapts a function to SnapshotSubscriber.
type SnapshotSubscriberFunc func(Snapshot)

func (f SnapshotSubscriberFunc) OnSnapshot(snap Snapshot) { f(snap) }

// SnapshotSink is an external store the snapshot is mirrored to.
type SnapshotSink interface {
	Name() string
	Push(ctx context.Context, snap Snapshot) error
}
