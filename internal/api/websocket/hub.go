// Package websocket streams engine events to local UI clients. Every hub
// event is fanned out as one JSON frame; clients that cannot keep up are
// dropped rather than allowed to stall the stream.
package websocket

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/events"
)

// Hub maintains active WebSocket clients and forwards engine events to them.
type Hub struct {
	events *events.Hub

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub bridging the engine event stream to WebSocket clients.
func NewHub(eventHub *events.Hub, logger *zap.Logger) *Hub {
	return &Hub{
		events:     eventHub,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It subscribes to every engine event and fans
// them out until Stop is called.
func (h *Hub) Run() {
	sub := h.events.Subscribe()
	defer sub.Close()

	h.logger.Info("WebSocket hub started")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
				zap.Int("total_clients", h.GetClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case evt := <-sub.C:
			h.broadcast(evt)

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return
		}
	}
}

// Stop shuts the hub down and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) broadcast(evt events.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Slow client: drop it rather than stall the stream.
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("Client send buffer full, unregistering",
				zap.String("remote_addr", client.conn.RemoteAddr().String()))
		}
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
