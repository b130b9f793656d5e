package domain

// RatioSeries tracks one ratio stream (futures or cash) and its crossing
// counters. Counters only ever grow.
type RatioSeries struct {
	band Band

	seeded   bool
	previous float64

	belowLow  uint64
	aboveHigh uint64
}

// NewRatioSeries creates an unseeded series checked against band.
func NewRatioSeries(band Band) *RatioSeries {
	return &RatioSeries{band: band}
}

// Observe records a new successful ratio and returns the crossings it caused.
// The first observation only seeds the series.
func (s *RatioSeries) Observe(ratio float64) Crossing {
	if !s.seeded {
		s.seeded = true
		s.previous = ratio
		return Crossing{}
	}

	c := s.band.Cross(s.previous, ratio)
	if c.BelowLow {
		s.belowLow++
	}
	if c.AboveHigh {
		s.aboveHigh++
	}
	s.previous = ratio
	return c
}

// Zone returns the zone of the last observed ratio.
func (s *RatioSeries) Zone() Zone {
	if !s.seeded {
		return ZoneUnseeded
	}
	return s.band.Zone(s.previous)
}

// BelowLowCount returns how many times the series crossed below Low.
func (s *RatioSeries) BelowLowCount() uint64 { return s.belowLow }

// AboveHighCount returns how many times the series crossed above High.
func (s *RatioSeries) AboveHighCount() uint64 { return s.aboveHigh }
