package dashboard

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientBacklog  = 32
	maxInboundSize = 512
)

// Event is one push frame sent to dashboard clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans events out to connected dashboard sockets. Slow clients are
// disconnected rather than allowed to apply backpressure.
type Hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*client]bool

	throttleWindow time.Duration
	pending        map[string]*time.Timer
}

// NewHub builds a hub with the given emit coalescing window.
func NewHub(throttleWindow time.Duration, logger *zap.Logger) *Hub {
	return &Hub{
		logger:         logger,
		clients:        make(map[*client]bool),
		throttleWindow: throttleWindow,
		pending:        make(map[string]*time.Timer),
	}
}

// Broadcast sends an event to every connected client immediately.
func (h *Hub) Broadcast(eventType string, payload any) {
	raw, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Warn("dashboard event marshal failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			h.dropLocked(c)
		}
	}
	h.mu.Unlock()
}

// EmitThrottled schedules a broadcast for an event key, coalescing repeated
// emissions within the throttle window into one push. The payload function
// runs when the push actually fires, so clients always get fresh state.
func (h *Hub) EmitThrottled(eventType string, payload func() any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, scheduled := h.pending[eventType]; scheduled {
		return
	}
	h.pending[eventType] = time.AfterFunc(h.throttleWindow, func() {
		h.mu.Lock()
		delete(h.pending, eventType)
		h.mu.Unlock()
		h.Broadcast(eventType, payload())
	})
}

// Clients reports the number of connected sockets.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and cancels pending throttled emits.
func (h *Hub) Close() {
	h.mu.Lock()
	for key, timer := range h.pending {
		timer.Stop()
		delete(h.pending, key)
	}
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.mu.Unlock()
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (h *Hub) serveClient(conn *websocket.Conn) {
	c := &client{hub: h, conn: conn, send: make(chan []byte, clientBacklog)}
	h.add(c)
	go c.writePump()
	go c.readPump()
}

// readPump discards inbound frames; the dashboard channel is push only. Its
// real job is noticing disconnects and answering pings.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
