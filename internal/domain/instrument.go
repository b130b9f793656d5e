package domain

import "strings"

// Exchange identifies the venue an instrument is listed on.
type Exchange string

const (
	ExchangeNSE Exchange = "NSE"
	ExchangeBSE Exchange = "BSE"
)

// Segment identifies the market segment inside an exchange.
type Segment string

const (
	SegmentCash       Segment = "CASH"
	SegmentDerivative Segment = "FNO"
)

// Instrument locates one tradable quantity inside the feed's nested payload:
// payload[Exchange][Segment][ExchangeToken].
type Instrument struct {
	Exchange      Exchange `json:"exchange"`
	Segment       Segment  `json:"segment"`
	ExchangeToken string   `json:"exchange_token"`
}

func (i Instrument) String() string {
	return string(i.Exchange) + "/" + string(i.Segment) + "/" + i.ExchangeToken
}

// IsZero reports whether the descriptor was never resolved.
func (i Instrument) IsZero() bool {
	return i.Exchange == "" && i.Segment == "" && i.ExchangeToken == ""
}

// TickKind tells which feed channel a message arrived on.
type TickKind int

const (
	TickUnknown TickKind = iota
	TickIndexValue
	TickLastTradedPrice
)

// Feed type tags used on the wire.
const (
	FeedTypeIndexValue = "index_value"
	FeedTypeLTP        = "ltp"
)

func (k TickKind) String() string {
	switch k {
	case TickIndexValue:
		return FeedTypeIndexValue
	case TickLastTradedPrice:
		return FeedTypeLTP
	default:
		return "unknown"
	}
}

// ParseTickKind maps a feed type tag to a TickKind. Unknown tags yield TickUnknown.
func ParseTickKind(feedType string) TickKind {
	switch strings.ToLower(strings.TrimSpace(feedType)) {
	case FeedTypeIndexValue:
		return TickIndexValue
	case FeedTypeLTP:
		return TickLastTradedPrice
	default:
		return TickUnknown
	}
}

// Quantity names one of the four tracked scalar values.
type Quantity string

const (
	QuantityNiftyFut   Quantity = "nifty_fut"
	QuantitySensexFut  Quantity = "sensex_fut"
	QuantityNiftyCash  Quantity = "nifty_cash"
	QuantitySensexCash Quantity = "sensex_cash"
)

// InstrumentSet is the resolved, immutable set of descriptors for both pairs.
// Each quantity may carry several candidates; the first one present in a
// payload wins.
type InstrumentSet struct {
	NiftyIndex  []Instrument `json:"nifty_index"`
	SensexIndex []Instrument `json:"sensex_index"`
	NiftyFut    []Instrument `json:"nifty_fut"`
	SensexFut   []Instrument `json:"sensex_fut"`
}

// Candidates returns the descriptors tried for a quantity.
func (s InstrumentSet) Candidates(q Quantity) []Instrument {
	switch q {
	case QuantityNiftyFut:
		return s.NiftyFut
	case QuantitySensexFut:
		return s.SensexFut
	case QuantityNiftyCash:
		return s.NiftyIndex
	case QuantitySensexCash:
		return s.SensexIndex
	default:
		return nil
	}
}

// Subscriptions returns every instrument to subscribe on the channel of kind,
// without duplicates.
func (s InstrumentSet) Subscriptions(kind TickKind) []Instrument {
	var groups [][]Instrument
	switch kind {
	case TickIndexValue:
		groups = [][]Instrument{s.NiftyIndex, s.SensexIndex}
	case TickLastTradedPrice:
		groups = [][]Instrument{s.NiftyFut, s.SensexFut}
	default:
		return nil
	}

	seen := make(map[Instrument]bool)
	var out []Instrument
	for _, g := range groups {
		for _, inst := range g {
			if inst.IsZero() || seen[inst] {
				continue
			}
			seen[inst] = true
			out = append(out, inst)
		}
	}
	return out
}

// Payload is a decoded, provider-defined feed message. It is usually a
// map[string]any produced by a JSON decoder but may be any nested mapping;
// no key is guaranteed to exist.
type Payload = any

// FeedMeta is the metadata record handed to feed callbacks.
type FeedMeta struct {
	FeedType string
	Exchange string
	Segment  string
}
