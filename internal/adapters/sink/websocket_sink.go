package sink

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 << 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocket fans delivered frames out to connected viewers. Each frame is
// sent as one JSON message (payload base64-encoded by the JSON codec).
// Emit succeeds even with zero viewers; a live stream has nothing to retry.
type WebSocket struct {
	obs ports.Observability

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	closed  bool
}

func NewWebSocket(obs ports.Observability) *WebSocket {
	return &WebSocket{
		obs:     obs,
		clients: make(map[*websocket.Conn]bool),
	}
}

func (w *WebSocket) Name() string { return "websocket" }

// ServeHTTP upgrades a viewer connection and registers it with the hub.
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.obs.LogError("websocket upgrade failed", err)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return
	}
	w.clients[conn] = true
	n := len(w.clients)
	w.mu.Unlock()

	w.obs.LogInfo("viewer connected", ports.Field{Key: "viewers", Value: n})

	// Viewers never send application data; the read loop only notices
	// disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				w.drop(conn)
				return
			}
		}
	}()
}

func (w *WebSocket) Emit(f *domain.Frame) error {
	msg, err := json.Marshal(f)
	if err != nil {
		return ports.Permanent(fmt.Errorf("marshal frame %d: %w", f.Seq, err))
	}

	w.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(w.clients))
	for c := range w.clients {
		conns = append(conns, c)
	}
	w.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			w.obs.LogError("viewer write failed, dropping connection", err)
			w.drop(c)
		}
	}
	return nil
}

// Viewers returns the number of connected clients.
func (w *WebSocket) Viewers() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.clients)
}

// Close disconnects all viewers and rejects future upgrades.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for c := range w.clients {
		c.Close()
		delete(w.clients, c)
	}
	return nil
}

func (w *WebSocket) drop(conn *websocket.Conn) {
	w.mu.Lock()
	if _, ok := w.clients[conn]; ok {
		delete(w.clients, conn)
		conn.Close()
	}
	n := len(w.clients)
	closed := w.closed
	w.mu.Unlock()

	if !closed {
		w.obs.LogInfo("viewer disconnected", ports.Field{Key: "viewers", Value: n})
	}
}

var _ ports.Sink = (*WebSocket)(nil)
