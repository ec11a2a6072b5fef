package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Event is the JSON envelope broadcast to WebSocket clients. Type names
// mirror the gateway's internal events: launched, move2d, crash,
// message, sub_ready, sub_measure, sub_picture, sub_crash, sub_arise,
// sub_disconnected.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub fans gateway events out to WebSocket clients. Slow clients drop
// messages rather than stalling the rest.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool

	registerCh   chan *wsClient
	unregisterCh chan *wsClient
	broadcastCh  chan []byte
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. Run must be started before events flow.
func NewHub() *Hub {
	return &Hub{
		clients:      make(map[*wsClient]bool),
		registerCh:   make(chan *wsClient, 16),
		unregisterCh: make(chan *wsClient, 16),
		broadcastCh:  make(chan []byte, 256),
	}
}

// Run processes register, unregister and broadcast events until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case client := <-h.registerCh:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregisterCh:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()

		case data := <-h.broadcastCh:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends data to all connected clients. Safe from any
// goroutine; drops when the hub is saturated.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcastCh <- data:
	default:
	}
}

// BroadcastEvent marshals an Event and broadcasts it. Its signature
// matches the gateway's event callbacks so it can be wired directly.
func (h *Hub) BroadcastEvent(eventType string, payload interface{}) {
	evt := Event{Type: eventType, Payload: payload}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("websocket: failed to marshal event: %v", err)
		return
	}
	h.Broadcast(data)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and streams events until the
// client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins for LAN use
	})
	if err != nil {
		log.Printf("websocket: accept failed: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.registerCh <- client

	go h.writePump(r.Context(), client)
	h.readPump(r.Context(), client)
}

func (h *Hub) writePump(ctx context.Context, c *wsClient) {
	defer func() {
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump drains the connection; clients are not expected to send
// anything.
func (h *Hub) readPump(ctx context.Context, c *wsClient) {
	defer func() {
		h.unregisterCh <- c
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
