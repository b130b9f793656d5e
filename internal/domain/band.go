package domain

// Ratio thresholds watched on both series.
const (
	RatioLow  = 3.25
	RatioHigh = 3.26
)

// Zone is the position of a ratio relative to a Band.
type Zone int

const (
	ZoneUnseeded Zone = iota
	ZoneBelowLow
	ZoneInBand
	ZoneAboveHigh
)

func (z Zone) String() string {
	switch z {
	case ZoneBelowLow:
		return "below_low"
	case ZoneInBand:
		return "in_band"
	case ZoneAboveHigh:
		return "above_high"
	default:
		return "unseeded"
	}
}

// Band is a hysteresis band [Low, High] on a ratio series.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DefaultBand is the band both ratio series are checked against.
var DefaultBand = Band{Low: RatioLow, High: RatioHigh}

// Crossing reports which band edges were crossed between two consecutive
// values. Both may be set when a single update jumps over the whole band.
type Crossing struct {
	BelowLow  bool
	AboveHigh bool
}

// Any reports whether any edge was crossed.
func (c Crossing) Any() bool {
	return c.BelowLow || c.AboveHigh
}

// Cross evaluates both edges independently:
// - BelowLow when prev >= Low and cur < Low
// - AboveHigh when prev <= High and cur > High
func (b Band) Cross(prev, cur float64) Crossing {
	return Crossing{
		BelowLow:  prev >= b.Low && cur < b.Low,
		AboveHigh: prev <= b.High && cur > b.High,
	}
}

// Zone classifies v against the band. Boundaries belong to the band.
func (b Band) Zone(v float64) Zone {
	switch {
	case v < b.Low:
		return ZoneBelowLow
	case v > b.High:
		return ZoneAboveHigh
	default:
		return ZoneInBand
	}
}
