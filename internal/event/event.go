package event

import (
	"time"

	"ratio_watch/internal/domain"
)

// Tick is one incoming feed message for one channel kind.
type Tick struct {
	Kind       domain.TickKind
	Payload    domain.Payload
	ReceivedAt time.Time
}

// IndexValueTick builds an index-value tick.
func IndexValueTick(payload domain.Payload) Tick {
	return Tick{Kind: domain.TickIndexValue, Payload: payload, ReceivedAt: time.Now()}
}

// LastTradedPriceTick builds a last-traded-price tick.
func LastTradedPriceTick(payload domain.Payload) Tick {
	return Tick{Kind: domain.TickLastTradedPrice, Payload: payload, ReceivedAt: time.Now()}
}
