package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"go-request-guard/internal/event"
	"go-request-guard/internal/ratelimit"
)

// Hub fans bus events out to connected admin consoles.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Event bus to listen for events
	bus event.Bus

	logger    *slog.Logger
	connected atomic.Int64
	done      chan struct{}
}

func NewHub(bus event.Bus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
		bus:        bus,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled. Remaining clients are
// disconnected on exit.
func (h *Hub) Run(ctx context.Context) {
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()
	defer close(h.done)
	defer func() {
		for client := range h.clients {
			h.drop(client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.connected.Add(1)
			h.logger.Info("event stream client connected", "actor_id", client.actorID, "clients", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("event stream client disconnected", "actor_id", client.actorID, "clients", len(h.clients))
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			message, err := json.Marshal(redact(e))
			if err != nil {
				h.logger.Error("failed to marshal event", "type", string(e.Type), "error", err)
				continue
			}
			for client := range h.clients {
				if !client.wants(e.Type) {
					continue
				}
				select {
				case client.send <- message:
				default:
					h.logger.Warn("event stream client too slow; disconnecting", "actor_id", client.actorID)
					h.drop(client)
				}
			}
		}
	}
}

// redact shortens client IPs the way the denial log line does and drops user
// agents. The bus keeps the full values for the audit store.
func redact(e event.Event) event.Event {
	switch payload := e.Payload.(type) {
	case event.Denial:
		payload.ClientIP = ratelimit.TruncateKey(payload.ClientIP)
		payload.UserAgent = ""
		e.Payload = payload
	case event.RecordAccepted:
		payload.ClientIP = ratelimit.TruncateKey(payload.ClientIP)
		e.Payload = payload
	}
	return e
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.connected.Add(-1)
}

// Clients reports how many clients are registered.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
