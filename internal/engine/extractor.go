package engine

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"ratio_watch/internal/domain"
)

// priceFields is the lookup order for a last-traded-price record.
var priceFields = []string{"ltp", "lastPrice", "last_price", "last", "close"}

// ExtractValue pulls the value of inst out of raw for a tick of the given
// kind. It never panics: any missing level or unusable leaf reports false.
func ExtractValue(raw domain.Payload, inst domain.Instrument, kind domain.TickKind) (float64, bool) {
	if raw == nil {
		return 0, false
	}

	exchange, ok := child(raw, string(inst.Exchange))
	if !ok {
		return 0, false
	}
	segment, ok := child(exchange, string(inst.Segment))
	if !ok {
		return 0, false
	}
	leaf, ok := tokenChild(segment, inst.ExchangeToken)
	if !ok {
		return 0, false
	}

	switch kind {
	case domain.TickLastTradedPrice:
		if v, ok := toFloat(leaf); ok {
			return v, true
		}
		for _, field := range priceFields {
			if v, present := child(leaf, field); present {
				return toFloat(v)
			}
		}
		return 0, false
	case domain.TickIndexValue:
		v, ok := child(leaf, "value")
		if !ok {
			return 0, false
		}
		return toFloat(v)
	default:
		return 0, false
	}
}

// ExtractFirst returns the value of the first candidate present in raw.
func ExtractFirst(raw domain.Payload, candidates []domain.Instrument, kind domain.TickKind) (float64, bool) {
	for _, inst := range candidates {
		if v, ok := ExtractValue(raw, inst, kind); ok {
			return v, true
		}
	}
	return 0, false
}

// child looks key up in node when node is a mapping. Null values count as
// missing.
func child(node any, key string) (any, bool) {
	var v any
	var ok bool
	switch m := node.(type) {
	case map[string]any:
		v, ok = m[key]
	case map[any]any:
		v, ok = m[key]
	case map[string]string:
		var s string
		s, ok = m[key]
		v = s
	case map[string]float64:
		var f float64
		f, ok = m[key]
		v = f
	default:
		return nil, false
	}
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// tokenChild looks an exchange token up under both its string and integer
// forms; providers are inconsistent about which one they use.
func tokenChild(node any, token string) (any, bool) {
	if v, ok := child(node, token); ok {
		return v, true
	}
	n, err := strconv.ParseInt(strings.TrimSpace(token), 10, 64)
	if err != nil {
		return nil, false
	}

	var v any
	var ok bool
	switch m := node.(type) {
	case map[any]any:
		for _, k := range []any{int(n), n, int32(n), uint64(n), float64(n), strconv.FormatInt(n, 10)} {
			if v, ok = m[k]; ok && v != nil {
				return v, true
			}
		}
		return nil, false
	case map[int]any:
		v, ok = m[int(n)]
	case map[int64]any:
		v, ok = m[n]
	case map[string]any:
		v, ok = m[strconv.FormatInt(n, 10)]
	default:
		return nil, false
	}
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// toFloat coerces a numeric leaf. Non-numeric strings, NaN and infinities
// are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
