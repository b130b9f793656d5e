package domain

import (
	"encoding/json"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestSnapshot_JSONUnknownIsNull(t *testing.T) {
	snap := Snapshot{NiftyFut: ptr(25000), FutBelow325: 2}

	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m) != 10 {
		t.Errorf("expected 10 fields, got %d", len(m))
	}
	if v, ok := m["sensex_fut"]; !ok || v != nil {
		t.Errorf("sensex_fut should be present and null, got %v (present=%v)", v, ok)
	}
	if m["nifty_fut"] != float64(25000) {
		t.Errorf("nifty_fut = %v", m["nifty_fut"])
	}
	if m["fut_below_325"] != float64(2) {
		t.Errorf("fut_below_325 = %v", m["fut_below_325"])
	}
}

func TestSnapshot_Rows(t *testing.T) {
	snap := Snapshot{FutRatio: ptr(3.2461), CashAbove326: 4}
	rows := snap.Rows()

	if len(rows) != 11 {
		t.Fatalf("expected header + 10 rows, got %d", len(rows))
	}
	if rows[0][0] != "metric" || rows[0][1] != "value" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "nifty_fut" || rows[1][1] != "" {
		t.Errorf("unknown value should be empty, got %v", rows[1])
	}
	if rows[3][0] != "fut_ratio" || rows[3][1] != "3.2461" {
		t.Errorf("fut_ratio row = %v", rows[3])
	}
	if rows[10][0] != "cash_above_326" || rows[10][1] != "4" {
		t.Errorf("cash_above_326 row = %v", rows[10])
	}
}
