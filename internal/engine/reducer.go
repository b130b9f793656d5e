package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"ratio_watch/internal/domain"
	"ratio_watch/internal/event"
	"ratio_watch/internal/infra"

	"github.com/shopspring/decimal"
)

// Display precision of published values.
const (
	pricePlaces = 2
	ratioPlaces = 4
)

// pair describes one ratio series: ratio = numerator / denominator.
type pair struct {
	name        string
	kind        domain.TickKind
	denominator domain.Quantity
	numerator   domain.Quantity
	ratio       *float64
	series      *domain.RatioSeries
	dropLogged  bool
}

// Reducer owns the derived dashboard state. Every mutation happens under mu,
// so ticks from different feed goroutines are applied one at a time and
// readers always see a consistent snapshot. Published snapshots never go
// backwards: a snapshot overtaken by a newer one is not delivered.
type Reducer struct {
	inbox       chan *event.Tick
	instruments domain.InstrumentSet
	metrics     *infra.Metrics
	logger      *slog.Logger

	mu     sync.RWMutex
	latest map[domain.Quantity]float64
	fut    *pair
	cash   *pair
	seq    uint64

	// Boundary: notified with a fresh snapshot after every state change
	onStateUpdate func(domain.Snapshot)

	// pubMu orders publication; snapshots older than published are skipped.
	pubMu     sync.Mutex
	published uint64
}

// NewReducer creates a reducer with all values unknown and counters at zero.
func NewReducer(inboxSize int, instruments domain.InstrumentSet, onUpdate func(domain.Snapshot)) *Reducer {
	return &Reducer{
		inbox:       make(chan *event.Tick, inboxSize),
		instruments: instruments,
		metrics:     infra.GlobalMetrics,
		logger:      slog.Default().With("module", "reducer"),
		latest:      make(map[domain.Quantity]float64, 4),
		fut: &pair{
			name:        "fut",
			kind:        domain.TickLastTradedPrice,
			denominator: domain.QuantityNiftyFut,
			numerator:   domain.QuantitySensexFut,
			series:      domain.NewRatioSeries(domain.DefaultBand),
		},
		cash: &pair{
			name:        "cash",
			kind:        domain.TickIndexValue,
			denominator: domain.QuantityNiftyCash,
			numerator:   domain.QuantitySensexCash,
			series:      domain.NewRatioSeries(domain.DefaultBand),
		},
		onStateUpdate: onUpdate,
	}
}

// SetOnUpdate replaces the state-change callback. Call before Run.
func (r *Reducer) SetOnUpdate(onUpdate func(domain.Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStateUpdate = onUpdate
}

// Inbox returns the tick channel. Feed goroutines send pooled ticks here.
func (r *Reducer) Inbox() chan<- *event.Tick {
	return r.inbox
}

// Run drains the inbox until ctx is done. Run it in its own goroutine.
func (r *Reducer) Run(ctx context.Context) {
	r.logger.Info("Reducer started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reducer stopping...")
			return
		case ev := <-r.inbox:
			if ev == nil {
				continue
			}
			r.safeApply(ev)
		}
	}
}

// safeApply applies one inbox tick. A panic drops the tick, never the loop.
func (r *Reducer) safeApply(ev *event.Tick) {
	defer event.ReleaseTick(ev)
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.RecordDropped()
			r.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", rec))
			r.DumpState("panic_dump.json")
		}
	}()
	r.Apply(*ev)
}

// OnIndexValue applies an index-value payload.
func (r *Reducer) OnIndexValue(payload domain.Payload) bool {
	return r.Apply(event.IndexValueTick(payload))
}

// OnLastTradedPrice applies a last-traded-price payload.
func (r *Reducer) OnLastTradedPrice(payload domain.Payload) bool {
	return r.Apply(event.LastTradedPriceTick(payload))
}

// Apply reduces one tick and reports whether the state changed. Malformed,
// partial and unknown ticks are dropped without error.
func (r *Reducer) Apply(ev event.Tick) bool {
	start := time.Now()

	var p *pair
	switch ev.Kind {
	case domain.TickLastTradedPrice:
		p = r.fut
	case domain.TickIndexValue:
		p = r.cash
	default:
		r.metrics.RecordDropped()
		return false
	}

	// Extraction only reads the payload, so it runs outside the lock.
	den, okDen := ExtractFirst(ev.Payload, r.instruments.Candidates(p.denominator), ev.Kind)
	num, okNum := ExtractFirst(ev.Payload, r.instruments.Candidates(p.numerator), ev.Kind)
	if !okDen || !okNum {
		r.metrics.RecordDropped()
		return false
	}

	if den == 0 {
		r.dropOnce(p, "Ratio denominator is zero, tick ignored")
		return false
	}

	ratio := num / den
	if math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		r.dropOnce(p, "Ratio is not finite, tick ignored")
		return false
	}
	den, num = round(den, pricePlaces), round(num, pricePlaces)
	rounded := round(ratio, ratioPlaces)

	crossing, seq, snap, onUpdate := r.commit(p, den, num, ratio, rounded)

	if crossing.Any() {
		r.logCrossing(p, crossing, rounded, snap)
	}

	r.metrics.RecordEvent(time.Since(start).Nanoseconds())

	if onUpdate != nil {
		r.publish(seq, snap, onUpdate)
	}
	return true
}

// commit writes one accepted tick and returns what to publish.
func (r *Reducer) commit(p *pair, den, num, ratio, rounded float64) (domain.Crossing, uint64, domain.Snapshot, func(domain.Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latest[p.denominator] = den
	r.latest[p.numerator] = num
	p.ratio = &rounded
	crossing := p.series.Observe(ratio)

	r.seq++
	return crossing, r.seq, r.snapshotLocked(), r.onStateUpdate
}

// publish hands snap to onUpdate unless a newer snapshot already went out.
func (r *Reducer) publish(seq uint64, snap domain.Snapshot, onUpdate func(domain.Snapshot)) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	if seq <= r.published {
		return
	}
	r.published = seq
	onUpdate(snap)
}

func (r *Reducer) dropOnce(p *pair, msg string) {
	r.metrics.RecordDropped()

	r.mu.Lock()
	first := !p.dropLogged
	p.dropLogged = true
	r.mu.Unlock()

	if first {
		r.logger.Warn(msg,
			slog.String("series", p.name),
			slog.String("quantity", string(p.denominator)))
	}
}

func (r *Reducer) logCrossing(p *pair, c domain.Crossing, ratio float64, snap domain.Snapshot) {
	below, above := snap.FutBelow325, snap.FutAbove326
	if p == r.cash {
		below, above = snap.CashBelow325, snap.CashAbove326
	}
	if c.BelowLow {
		r.metrics.RecordCrossing()
		r.logger.Info("RATIO_CROSSED_BELOW_LOW",
			slog.String("series", p.name),
			slog.Float64("ratio", ratio),
			slog.Float64("low", domain.RatioLow),
			slog.Uint64("count", below))
	}
	if c.AboveHigh {
		r.metrics.RecordCrossing()
		r.logger.Info("RATIO_CROSSED_ABOVE_HIGH",
			slog.String("series", p.name),
			slog.Float64("ratio", ratio),
			slog.Float64("high", domain.RatioHigh),
			slog.Uint64("count", above))
	}
}

// Snapshot returns a point-in-time copy of the observable state.
func (r *Reducer) Snapshot() domain.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Zones returns the current band zone of the futures and cash series.
func (r *Reducer) Zones() (fut, cash domain.Zone) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fut.series.Zone(), r.cash.series.Zone()
}

func (r *Reducer) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		NiftyFut:     r.latestPtr(domain.QuantityNiftyFut),
		SensexFut:    r.latestPtr(domain.QuantitySensexFut),
		FutRatio:     copyPtr(r.fut.ratio),
		NiftyCash:    r.latestPtr(domain.QuantityNiftyCash),
		SensexCash:   r.latestPtr(domain.QuantitySensexCash),
		CashRatio:    copyPtr(r.cash.ratio),
		FutBelow325:  r.fut.series.BelowLowCount(),
		FutAbove326:  r.fut.series.AboveHighCount(),
		CashBelow325: r.cash.series.BelowLowCount(),
		CashAbove326: r.cash.series.AboveHighCount(),
	}
}

func (r *Reducer) latestPtr(q domain.Quantity) *float64 {
	v, ok := r.latest[q]
	if !ok {
		return nil
	}
	return &v
}

// DumpState writes the current snapshot to a file (for post-mortem).
func (r *Reducer) DumpState(filename string) {
	r.logger.Info("Dumping internal state...", slog.String("file", filename))

	// A panic may have left the lock held; never block the dump on it.
	if !r.mu.TryRLock() {
		r.logger.Error("State is locked, dump skipped")
		return
	}
	data := struct {
		Snapshot domain.Snapshot `json:"snapshot"`
		FutZone  string          `json:"fut_zone"`
		CashZone string          `json:"cash_zone"`
		DumpedAt time.Time       `json:"dumped_at"`
	}{
		Snapshot: r.snapshotLocked(),
		FutZone:  r.fut.series.Zone().String(),
		CashZone: r.cash.series.Zone().String(),
		DumpedAt: time.Now(),
	}
	r.mu.RUnlock()

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		r.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		r.logger.Error("Failed to write state dump", slog.Any("error", fmt.Errorf("dump %s: %w", filename, err)))
	}
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func copyPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
