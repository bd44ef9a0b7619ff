package streaming

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxWSConnections caps concurrent dashboard connections, matching
// ws_hub.go's connection-cap self-protection.
const maxWSConnections = 200

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub broadcasts Events to every connected WebSocket client, adapted from
// control_plane/ws_hub.go's MetricsHub.
type Hub struct {
	mu         sync.Mutex
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan Event
}

// NewHub constructs an idle Hub. Call Run to start its event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan Event, 256),
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers it
// with the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	full := len(h.clients) >= maxWSConnections
	h.mu.Unlock()
	if full {
		http.Error(w, "too many dashboard connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[STREAMING] websocket upgrade failed: %v", err)
		return
	}
	h.register <- conn
}

// Run drives the hub's register/unregister/broadcast loop until ctx is
// canceled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.Close()
			}
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		case e := <-h.broadcast:
			h.send(e)
		case <-ticker.C:
			h.send(Event{Kind: "heartbeat", Timestamp: time.Now().Unix()})
		}
	}
}

func (h *Hub) send(e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			go func(c *websocket.Conn) { h.unregister <- c }(conn)
		}
	}
}

// Publish queues e for broadcast to all connected clients. Never blocks the
// caller: a full broadcast channel drops the event.
func (h *Hub) Publish(_ context.Context, e Event) error {
	select {
	case h.broadcast <- e:
	default:
		log.Printf("[STREAMING] dashboard broadcast buffer full, dropping %s event", e.Kind)
	}
	return nil
}

// Close is a no-op; shutdown happens via Run's ctx cancellation.
func (h *Hub) Close() error { return nil }
