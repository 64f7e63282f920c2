package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/KevinKickass/OpenSimCore/internal/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth handshake
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	id          uuid.UUID
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	logger      *zap.Logger
	permissions []auth.Permission

	// Devices the client subscribed to; empty means all
	subMu   sync.RWMutex
	devices map[string]bool
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

func (c *Client) wants(device string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.devices) == 0 || device == "" || c.devices[device]
}

func (c *Client) subscribe(devices []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.devices = make(map[string]bool, len(devices))
	for _, d := range devices {
		c.devices[d] = true
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump(authenticated bool) {
	defer func() {
		if authenticated {
			select {
			case c.hub.unregister <- c:
			case <-c.hub.done:
			}
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if !authenticated {
		c.conn.SetReadDeadline(time.Now().Add(authWait))
	}

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			break
		}

		// First message MUST be authentication
		if !authenticated {
			if !c.authenticate(msg) {
				return
			}
			authenticated = true
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) authenticate(msg ClientMessage) bool {
	if msg.Type != MessageTypeAuth || msg.Token == "" {
		c.writeDirect(NewMessage(MessageTypeAuthFailed, "first message must be authentication"))
		return false
	}

	claims, err := c.hub.jwt.ValidateToken(msg.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		c.writeDirect(NewMessage(MessageTypeAuthFailed, "invalid or expired token"))
		return false
	}

	c.permissions = auth.RolePermissions(claims.Role)
	c.conn.SetReadDeadline(time.Time{})
	c.logger.Info("WebSocket client authenticated",
		zap.String("client_id", c.id.String()),
		zap.String("subject", claims.Subject))

	c.send <- mustMarshal(NewMessage(MessageTypeAuthSuccess, c.permissions))
	c.start()
	return true
}

func (c *Client) handleMessage(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribe(msg.Devices)
		c.logger.Debug("WebSocket client subscribed",
			zap.String("client_id", c.id.String()),
			zap.Strings("devices", msg.Devices))
		c.enqueue(NewMessage(MessageTypeSubscribed, msg.Devices))
	default:
		c.logger.Debug("Ignoring client message",
			zap.String("client_id", c.id.String()),
			zap.String("type", string(msg.Type)))
	}
}

// start registers the client and runs its write pump.
func (c *Client) start() {
	go c.writePump()
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
	}
}

// enqueue sends to the client while it is still registered.
func (c *Client) enqueue(msg Message) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- mustMarshal(msg):
	default:
	}
}

// writeDirect writes before the write pump runs.
func (c *Client) writeDirect(msg Message) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteJSON(msg)
}

func mustMarshal(msg Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		data, _ = json.Marshal(NewMessage(msg.Type, nil))
	}
	return data
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles WebSocket upgrade requests
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		id:     uuid.New(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	authenticated := hub.jwt == nil
	if authenticated {
		client.start()
	}
	go client.readPump(authenticated)
}
