package groww

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ratio_watch/internal/domain"
	"ratio_watch/internal/infra"
)

// Fixed index descriptors.
var (
	NiftyIndex  = domain.Instrument{Exchange: domain.ExchangeNSE, Segment: domain.SegmentCash, ExchangeToken: "NIFTY"}
	SensexIndex = domain.Instrument{Exchange: domain.ExchangeBSE, Segment: domain.SegmentCash, ExchangeToken: "1"}
)

var (
	niftyPrefixes  = []string{"NIFTY"}
	sensexPrefixes = []string{"SENSEX", "BFSENSEX"}
)

// InstrumentCache keeps the set resolved for a trading day.
type InstrumentCache interface {
	LoadInstruments(day time.Time) (domain.InstrumentSet, bool, error)
	SaveInstruments(day time.Time, set domain.InstrumentSet) error
}

// ResolverConfig carries the instrument master URL and the optional
// futures token overrides.
type ResolverConfig struct {
	URL            string
	NiftyFutToken  string
	SensexFutToken string
}

// Resolver builds the InstrumentSet: fixed indices plus the nearest-expiry
// Nifty and Sensex futures.
type Resolver struct {
	cfg        ResolverConfig
	cache      InstrumentCache
	httpClient *http.Client
	now        func() time.Time
	retryDelay func(attempt int) time.Duration
	logger     *slog.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(cfg ResolverConfig, cache InstrumentCache) *Resolver {
	if cfg.URL == "" {
		cfg.URL = infra.DefaultInstrumentsURL
	}
	return &Resolver{
		cfg:   cfg,
		cache: cache,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
		// 1s, 2s between the three attempts
		retryDelay: func(attempt int) time.Duration { return infra.CalculateBackoff(attempt - 1) },
		logger:     slog.Default().With("module", "instruments"),
	}
}

// Resolve returns the instrument set for today.
func (r *Resolver) Resolve(ctx context.Context) (domain.InstrumentSet, error) {
	set := domain.InstrumentSet{
		NiftyIndex:  []domain.Instrument{NiftyIndex},
		SensexIndex: []domain.Instrument{SensexIndex},
	}

	nifty := strings.TrimSpace(r.cfg.NiftyFutToken)
	sensex := strings.TrimSpace(r.cfg.SensexFutToken)
	if nifty != "" && sensex != "" {
		set.NiftyFut = []domain.Instrument{futOn(domain.ExchangeNSE, nifty)}
		set.SensexFut = sensexCandidates(domain.ExchangeNSE, sensex)
		return set, nil
	}

	today := r.now()
	if r.cache != nil {
		cached, ok, err := r.cache.LoadInstruments(today)
		if err != nil {
			r.logger.Warn("Instrument cache unreadable, resolving again", slog.Any("error", err))
		} else if ok && len(cached.NiftyFut) > 0 && len(cached.SensexFut) > 0 {
			r.logger.Info("Instrument set loaded from cache")
			return r.applyOverrides(cached, nifty, sensex), nil
		}
	}

	rows, err := r.download(ctx)
	if err != nil {
		return set, err
	}

	niftyInst, err := NearestFuture(rows, niftyPrefixes, domain.ExchangeNSE, today)
	if err != nil {
		return set, fmt.Errorf("%w; set NIFTY_FUT_EXCHANGE_TOKEN to skip the lookup", err)
	}
	sensexInst, err := NearestFuture(rows, sensexPrefixes, domain.ExchangeNSE, today)
	if err != nil {
		sensexInst, err = NearestFuture(rows, sensexPrefixes, domain.ExchangeBSE, today)
		if err != nil {
			return set, fmt.Errorf("could not resolve SENSEX futures, set SENSEX_FUT_EXCHANGE_TOKEN: %w", err)
		}
	}

	set.NiftyFut = []domain.Instrument{niftyInst}
	set.SensexFut = sensexCandidates(sensexInst.Exchange, sensexInst.ExchangeToken)

	if r.cache != nil {
		if err := r.cache.SaveInstruments(today, set); err != nil {
			r.logger.Warn("Failed to cache instrument set", slog.Any("error", err))
		}
	}

	r.logger.Info("Futures resolved",
		slog.String("nifty_fut", niftyInst.String()),
		slog.String("sensex_fut", sensexInst.String()),
	)
	return r.applyOverrides(set, nifty, sensex), nil
}

func (r *Resolver) applyOverrides(set domain.InstrumentSet, nifty, sensex string) domain.InstrumentSet {
	if nifty != "" {
		set.NiftyFut = []domain.Instrument{futOn(domain.ExchangeNSE, nifty)}
	}
	if sensex != "" {
		set.SensexFut = sensexCandidates(domain.ExchangeNSE, sensex)
	}
	return set
}

func futOn(exchange domain.Exchange, token string) domain.Instrument {
	return domain.Instrument{Exchange: exchange, Segment: domain.SegmentDerivative, ExchangeToken: token}
}

// sensexCandidates lists the exchange the contract was found on first; the
// feed may report it under either venue.
func sensexCandidates(found domain.Exchange, token string) []domain.Instrument {
	other := domain.ExchangeBSE
	if found == domain.ExchangeBSE {
		other = domain.ExchangeNSE
	}
	return []domain.Instrument{futOn(found, token), futOn(other, token)}
}

// download fetches the instrument master with up to three attempts.
func (r *Resolver) download(ctx context.Context) ([]map[string]string, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			delay := r.retryDelay(i)
			r.logger.Info("Retrying instrument download", slog.Int("attempt", i), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		rows, err := r.doDownload(ctx)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		r.logger.Warn("Instrument download attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
	}
	return nil, lastErr
}

func (r *Resolver) doDownload(ctx context.Context) ([]map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError("instruments", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return ParseInstrumentCSV(resp.Body)
}

// ParseInstrumentCSV reads the instrument master into header-keyed rows.
func ParseInstrumentCSV(rd io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read instrument header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read instrument row: %w", err)
		}
		row := make(map[string]string, len(cols))
		for i, v := range rec {
			if i < len(cols) {
				row[cols[i]] = v
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, errors.New("instrument master is empty")
	}
	return rows, nil
}

// NearestFuture picks the non-expired FNO futures contract on exchange whose
// trading symbol starts with one of prefixes and expires first.
func NearestFuture(rows []map[string]string, prefixes []string, exchange domain.Exchange, today time.Time) (domain.Instrument, error) {
	day := dateOf(today)

	var (
		best    domain.Instrument
		bestExp time.Time
		found   bool
	)
	for _, row := range rows {
		if row["exchange"] != string(exchange) || row["segment"] != string(domain.SegmentDerivative) {
			continue
		}
		exp, ok := parseExpiry(row["expiry_date"])
		if !ok || exp.Before(day) {
			continue
		}
		sym := strings.TrimSpace(row["trading_symbol"])
		if !hasAnyPrefix(sym, prefixes) || !strings.Contains(strings.ToUpper(sym), "FUT") {
			continue
		}
		if !found || exp.Before(bestExp) {
			best = futOn(exchange, strings.TrimSpace(row["exchange_token"]))
			bestExp = exp
			found = true
		}
	}

	if !found {
		return domain.Instrument{}, fmt.Errorf("%w: %v futures on %s", domain.ErrInstrumentNotFound, prefixes, exchange)
	}
	return best, nil
}

func parseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 10 {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
