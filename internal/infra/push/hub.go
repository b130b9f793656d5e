package push

import (
	"encoding/json"
	"log/slog"
	"sync"

	"ratio_watch/internal/domain"
	"ratio_watch/internal/infra"
)

// EventState is the event name of every pushed message.
const EventState = "state"

// Message is the wire form of a push: {"event":"state","data":{...}}.
type Message struct {
	Event string          `json:"event"`
	Data  domain.Snapshot `json:"data"`
}

// Client is one connected viewer.
type Client interface {
	ID() string
	// Send enqueues b without blocking and reports whether it was accepted.
	Send(b []byte) bool
	Close()
}

// Hub fans snapshots out to connected clients. A new client receives the
// current snapshot right away; a client that cannot keep up is dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[Client]struct{}

	current func() domain.Snapshot
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewHub creates a hub. current supplies the snapshot sent on connect.
func NewHub(current func() domain.Snapshot) *Hub {
	return &Hub{
		clients: make(map[Client]struct{}),
		current: current,
		metrics: infra.GlobalMetrics,
		logger:  slog.Default().With("module", "push"),
	}
}

// Register adds c and sends it the current snapshot. Both happen under mu,
// so a broadcast cannot slip in between.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	if h.current != nil {
		if b, err := encode(h.current()); err != nil {
			h.logger.Error("Failed to encode snapshot", slog.Any("error", err))
		} else {
			c.Send(b)
		}
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.IncrementClients()
	h.logger.Info("Client connected", slog.String("client", c.ID()), slog.Int("clients", n))
}

// Unregister removes and closes c. Unknown clients are ignored.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		c.Close()
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.metrics.DecrementClients()
		h.logger.Info("Client disconnected", slog.String("client", c.ID()), slog.Int("clients", n))
	}
}

// OnSnapshot broadcasts snap to every client.
func (h *Hub) OnSnapshot(snap domain.Snapshot) {
	b, err := encode(snap)
	if err != nil {
		h.logger.Error("Failed to encode snapshot", slog.Any("error", err))
		return
	}

	var slow []Client
	h.mu.RLock()
	for c := range h.clients {
		if !c.Send(b) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Client too slow, dropping", slog.String("client", c.ID()))
		h.Unregister(c)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Unregister(c)
	}
}

func encode(snap domain.Snapshot) ([]byte, error) {
	return json.Marshal(Message{Event: EventState, Data: snap})
}
