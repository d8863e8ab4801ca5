package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gridpulse/gridpulse-detector/internal/detector"
	"github.com/gridpulse/gridpulse-detector/internal/metrics"
	"github.com/gridpulse/gridpulse-detector/internal/telemetry"
)

// WebSocket message types
const (
	MessageTypeFinding   = "finding"
	MessageTypeHeartbeat = "heartbeat"
)

// WSMessage represents an outbound WebSocket message
type WSMessage struct {
	Type      string            `json:"type"`
	Finding   *detector.Finding `json:"finding,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

const (
	writeDeadline     = 10 * time.Second
	heartbeatInterval = 30 * time.Second

	// clientBuffer bounds per-client queues; a stalled observer gets dropped
	// rather than backing up the broadcast loop.
	clientBuffer = 64
)

// client is one connected WebSocket observer.
type client struct {
	conn *websocket.Conn
	send chan WSMessage
}

// Hub fans findings out to all connected WebSocket observers.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	broadcast chan WSMessage
}

func newHub(log *zap.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		log:       log,
		clients:   make(map[*client]struct{}),
		broadcast: make(chan WSMessage, 256),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker builds the Origin validation function. Requests without an
// Origin header (non-browser clients) are allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleSample queues findings for broadcast. Satisfies the ingestion
// pipeline's sink contract.
func (h *Hub) HandleSample(ctx context.Context, sample telemetry.Sample, findings []detector.Finding) {
	for i := range findings {
		msg := WSMessage{
			Type:      MessageTypeFinding,
			Finding:   &findings[i],
			Timestamp: time.Now().UTC(),
		}
		select {
		case h.broadcast <- msg:
		default:
			h.log.Warn("broadcast queue full, dropping finding",
				zap.String("finding_id", findings[i].ID))
		}
	}
}

// run delivers broadcasts and heartbeats until the context is canceled.
func (h *Hub) run(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.deliver(msg)
			metrics.WebSocketMessagesTotal.Inc()
		case <-heartbeat.C:
			h.deliver(WSMessage{Type: MessageTypeHeartbeat, Timestamp: time.Now().UTC()})
		}
	}
}

// deliver queues a message on every client, dropping clients whose queue is
// full.
func (h *Hub) deliver(msg WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.removeLocked(c)
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketConnections.Set(float64(count))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketConnections.Set(float64(count))
}

// removeLocked closes and forgets a client. Caller must hold h.mu.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
	metrics.WebSocketConnections.Set(0)
}

// handleWebSocket upgrades the connection and streams findings to it.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan WSMessage, clientBuffer),
	}
	h.add(c)
	h.log.Info("WebSocket observer connected", zap.String("remote", r.RemoteAddr))

	go h.writePump(c)
	h.readPump(c)
}

// writePump pushes queued messages to the socket.
func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.conn.WriteJSON(msg); err != nil {
			h.remove(c)
			return
		}
	}
}

// readPump discards inbound frames; the stream is one-way. It exists to
// detect the close handshake.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}
