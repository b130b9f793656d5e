package domain

import "strconv"

// Snapshot is an immutable point-in-time copy of every observable reducer field.
// Nil pointers mean "unknown" and serialize as null.
type Snapshot struct {
	NiftyFut   *float64 `json:"nifty_fut"`
	SensexFut  *float64 `json:"sensex_fut"`
	FutRatio   *float64 `json:"fut_ratio"`
	NiftyCash  *float64 `json:"nifty_cash"`
	SensexCash *float64 `json:"sensex_cash"`
	CashRatio  *float64 `json:"cash_ratio"`

	FutBelow325  uint64 `json:"fut_below_325"`
	FutAbove326  uint64 `json:"fut_above_326"`
	CashBelow325 uint64 `json:"cash_below_325"`
	CashAbove326 uint64 `json:"cash_above_326"`
}

// Metric is one row of the flattened (metric, value) form.
type Metric struct {
	Name  string
	Value string
}

// Metrics flattens the snapshot in a fixed order. Unknown values become "".
func (s Snapshot) Metrics() []Metric {
	return []Metric{
		{"nifty_fut", formatOptional(s.NiftyFut)},
		{"sensex_fut", formatOptional(s.SensexFut)},
		{"fut_ratio", formatOptional(s.FutRatio)},
		{"nifty_cash", formatOptional(s.NiftyCash)},
		{"sensex_cash", formatOptional(s.SensexCash)},
		{"cash_ratio", formatOptional(s.CashRatio)},
		{"fut_below_325", strconv.FormatUint(s.FutBelow325, 10)},
		{"fut_above_326", strconv.FormatUint(s.FutAbove326, 10)},
		{"cash_below_325", strconv.FormatUint(s.CashBelow325, 10)},
		{"cash_above_326", strconv.FormatUint(s.CashAbove326, 10)},
	}
}

// Rows returns the tabular form including the header row.
func (s Snapshot) Rows() [][]string {
	metrics := s.Metrics()
	rows := make([][]string, 0, len(metrics)+1)
	rows = append(rows, []string{"metric", "value"})
	for _, m := range metrics {
		rows = append(rows, []string{m.Name, m.Value})
	}
	return rows
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
