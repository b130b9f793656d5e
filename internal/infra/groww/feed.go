package groww

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"ratio_watch/internal/domain"
	"ratio_watch/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
	readTimeout      = 60 * time.Second
)

// Close codes the provider sends when it rejects the credential.
const (
	closeUnauthorized = 4001
	closeForbidden    = 4003
)

// FeedConfig describes one market-data session.
type FeedConfig struct {
	URL         string
	Instruments domain.InstrumentSet
	// MaxReconnects bounds consecutive reconnects after retriable failures.
	// 0 means the first failure ends Consume.
	MaxReconnects int
}

// subscribeFrame is sent once per channel right after connecting.
// {"action":"subscribe","feed_type":"ltp","instruments":[{"exchange":"NSE","segment":"FNO","exchange_token":"35001"}]}
type subscribeFrame struct {
	Action      string              `json:"action"`
	FeedType    string              `json:"feed_type"`
	Instruments []domain.Instrument `json:"instruments"`
}

// envelope is one inbound message; data holds the nested exchange/segment/token mapping.
type envelope struct {
	FeedType    string          `json:"feed_type"`
	FeedTypeAlt string          `json:"feedType"`
	Exchange    string          `json:"exchange"`
	Segment     string          `json:"segment"`
	Data        json.RawMessage `json:"data"`
}

// Feed is a websocket market-data session bound to one access token.
type Feed struct {
	cfg     FeedConfig
	token   string
	dialer  websocket.Dialer
	backoff func(attempt int) time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	latest map[string]domain.Payload
}

// NewFeed creates a feed session for accessToken.
func NewFeed(cfg FeedConfig, accessToken string) *Feed {
	return &Feed{
		cfg:     cfg,
		token:   accessToken,
		dialer:  websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		backoff: infra.CalculateBackoff,
		logger:  slog.Default().With("module", "groww_feed"),
		latest:  make(map[string]domain.Payload, 2),
	}
}

// Factory returns a domain.FeedFactory building feeds from cfg.
func Factory(cfg FeedConfig) domain.FeedFactory {
	return func(accessToken string) domain.Feed {
		return NewFeed(cfg, accessToken)
	}
}

// Latest returns the most recent payload received for feedType.
func (f *Feed) Latest(feedType string) domain.Payload {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest[normalizeFeedType(feedType)]
}

// Consume connects, subscribes and delivers messages to onData until ctx is
// done (nil) or the feed fails for good. Retriable failures reconnect with
// exponential backoff; the attempt counter resets after a session that
// delivered data.
func (f *Feed) Consume(ctx context.Context, onData domain.FeedHandler) error {
	attempt := 0
	for {
		delivered, err := f.session(ctx, onData)
		if ctx.Err() != nil {
			return nil
		}
		if delivered {
			attempt = 0
		}

		if !domain.IsRetriable(err) {
			return err
		}
		if attempt >= f.cfg.MaxReconnects {
			return fmt.Errorf("feed gave up after %d reconnects: %w", attempt, err)
		}

		delay := f.backoff(attempt)
		attempt++
		f.logger.Warn("Feed disconnected, reconnecting",
			slog.Any("error", err),
			slog.Int("retry", attempt),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session runs one connection. It reports whether any message was delivered.
func (f *Feed) session(ctx context.Context, onData domain.FeedHandler) (bool, error) {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+f.token)
	header.Set("User-Agent", infra.DefaultUserAgent)

	conn, resp, err := f.dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, domain.NewFatalNetworkError("dial", fmt.Errorf("%w: status %d", domain.ErrUnauthorized, resp.StatusCode))
		}
		return false, domain.NewNetworkError("dial", err)
	}
	defer conn.Close()

	if err := f.subscribe(conn); err != nil {
		return false, domain.NewNetworkError("subscribe", err)
	}

	f.logger.Info("Feed connected",
		slog.Int("index_instruments", len(f.cfg.Instruments.Subscriptions(domain.TickIndexValue))),
		slog.Int("ltp_instruments", len(f.cfg.Instruments.Subscriptions(domain.TickLastTradedPrice))),
	)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Keepalive; also unblocks ReadMessage when ctx is cancelled.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	delivered := false
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return delivered, nil
			}
			return delivered, classifyReadError(err)
		}

		if f.handleMessage(message, onData) {
			delivered = true
		}
	}
}

func (f *Feed) subscribe(conn *websocket.Conn) error {
	for _, kind := range []domain.TickKind{domain.TickIndexValue, domain.TickLastTradedPrice} {
		insts := f.cfg.Instruments.Subscriptions(kind)
		if len(insts) == 0 {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(subscribeFrame{
			Action:      "subscribe",
			FeedType:    kind.String(),
			Instruments: insts,
		}); err != nil {
			return err
		}
	}
	return nil
}

// handleMessage decodes one frame and hands it to onData. Malformed frames
// are skipped.
func (f *Feed) handleMessage(message []byte, onData domain.FeedHandler) bool {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		f.logger.Debug("Feed message parse error", slog.Any("error", err))
		return false
	}

	feedType := env.FeedType
	if feedType == "" {
		feedType = env.FeedTypeAlt
	}
	key := normalizeFeedType(feedType)
	if key == "" || len(env.Data) == 0 {
		f.logger.Debug("Feed message without feed type or data")
		return false
	}

	var payload domain.Payload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		f.logger.Debug("Feed payload parse error", slog.Any("error", err))
		return false
	}

	f.mu.Lock()
	f.latest[key] = payload
	f.mu.Unlock()

	if onData != nil {
		onData(domain.FeedMeta{FeedType: feedType, Exchange: env.Exchange, Segment: env.Segment},
			func() domain.Payload { return f.Latest(key) })
	}
	return true
}

func classifyReadError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case closeUnauthorized, closeForbidden:
			return domain.NewFatalNetworkError("read", fmt.Errorf("%w: close %d %s", domain.ErrUnauthorized, ce.Code, ce.Text))
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return domain.NewNetworkError("read", fmt.Errorf("%w: close %d", domain.ErrFeedClosed, ce.Code))
		}
	}
	return domain.NewNetworkError("read", err)
}

func normalizeFeedType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
