package event

import (
	"sync"
	"time"

	"ratio_watch/internal/domain"
)

// tickPool recycles Tick values handed from feed goroutines to the reducer inbox.
//
// Usage:
//
//	ev := AcquireTick(domain.TickLastTradedPrice, payload)
//	inbox <- ev
//	// ... reducer applies it ...
//	ReleaseTick(ev)
var tickPool = sync.Pool{
	New: func() interface{} {
		return &Tick{}
	},
}

// AcquireTick gets a Tick from the pool and initializes it.
func AcquireTick(kind domain.TickKind, payload domain.Payload) *Tick {
	ev := tickPool.Get().(*Tick)
	ev.Kind = kind
	ev.Payload = payload
	ev.ReceivedAt = time.Now()
	return ev
}

// ReleaseTick resets ev and returns it to the pool. The payload reference is
// dropped so the decoded message can be collected.
func ReleaseTick(ev *Tick) {
	if ev == nil {
		return
	}
	ev.Kind = domain.TickUnknown
	ev.Payload = nil
	ev.ReceivedAt = time.Time{}

	tickPool.Put(ev)
}
