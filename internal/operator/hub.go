package operator

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/antialize/simple-admin-sub001/internal/events"
	"github.com/antialize/simple-admin-sub001/internal/frame"
	"github.com/antialize/simple-admin-sub001/internal/metrics"
)

// Hub owns the set of connected operator Clients and fans out bus events
// to every authenticated one. Client handles are stable uint64s assigned
// at registration, matching the broadcast-by-handle model of spec §4.E
// (not literal pointer identity, which would be meaningless once logged
// or referenced from another goroutine).
type Hub struct {
	log *slog.Logger

	nextID atomic.Uint64

	mu      sync.RWMutex
	clients map[uint64]*Client
}

// NewHub creates a Hub and starts forwarding bus events to its clients.
func NewHub(bus *events.Bus, log *slog.Logger) *Hub {
	h := &Hub{log: log, clients: make(map[uint64]*Client)}
	go h.broadcastLoop(bus)
	return h
}

func (h *Hub) broadcastLoop(bus *events.Bus) {
	ch, cancel := bus.Subscribe()
	defer cancel()
	for evt := range ch {
		h.broadcast(Reply{Type: string(evt.Type), Data: evt.Data})
	}
}

func (h *Hub) broadcast(r Reply) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.isAuthenticated() {
			continue
		}
		c.enqueue(r)
	}
}

func (h *Hub) register(ch frame.Channel, host string) *Client {
	c := newClient(h.nextID.Add(1), ch, host, h.log)
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	metrics.ConnectedOperators.Inc()
	go c.writerLoop()
	return c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	metrics.ConnectedOperators.Dec()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
