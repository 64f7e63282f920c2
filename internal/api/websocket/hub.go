package websocket

import (
	"encoding/json"
	"sync"

	"github.com/KevinKickass/OpenSimCore/internal/auth"
	"github.com/KevinKickass/OpenSimCore/internal/host"
	"go.uber.org/zap"
)

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	done     chan struct{}
	stopOnce sync.Once

	mu     sync.RWMutex
	logger *zap.Logger

	// Token verifier; nil accepts clients without a handshake
	jwt *auth.JWTHandler
}

// NewHub creates a new Hub instance. A nil jwt disables the auth handshake.
func NewHub(logger *zap.Logger, jwt *auth.JWTHandler) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
		jwt:        jwt,
	}
}

// Run starts the hub's main event loop and returns after Stop.
func (h *Hub) Run() {
	h.logger.Info("WebSocket Hub started")
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("client_id", client.id.String()),
				zap.String("remote_addr", client.remoteAddr()),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("client_id", client.id.String()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(message.Device) {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("client_id", client.id.String()))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends Run and closes every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// Publish forwards a poller change event to subscribed clients.
func (h *Hub) Publish(ev host.Event) {
	h.Broadcast(NewAttributeChangeMessage(ev.Device, ev.Attribute, ev.Value, ev.Timestamp, ev.Quality.String()))
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
