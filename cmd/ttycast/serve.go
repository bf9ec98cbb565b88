package main

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // viewers may connect from anywhere
	},
}

// eventHub broadcasts the line-event stream to WebSocket viewers. The
// full stream so far is replayed to late joiners so every viewer sees a
// complete session from the Config event onwards.
type eventHub struct {
	mu      sync.Mutex
	writeMu sync.Mutex // gorilla/websocket isn't concurrent-write safe
	clients map[*websocket.Conn]bool
	history [][]byte
	closed  bool
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*websocket.Conn]bool)}
}

// Broadcast appends one encoded event to the history and sends it to
// every connected viewer.
func (h *eventHub) Broadcast(line []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, line)

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			log.Printf("Broadcast write error: %v", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// Close disconnects all viewers; further connections are refused.
func (h *eventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}

// handleViewer upgrades the connection, replays the event history, and
// keeps the viewer registered until it disconnects.
func (h *eventHub) handleViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	replay := make([][]byte, len(h.history))
	copy(replay, h.history)
	h.clients[conn] = true

	h.writeMu.Lock()
	h.mu.Unlock()
	for _, line := range replay {
		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			log.Printf("Replay write error: %v", err)
			break
		}
	}
	h.writeMu.Unlock()

	log.Printf("Viewer connected (replayed %d events)", len(replay))

	// Drain (and ignore) viewer messages until the connection drops.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
	log.Printf("Viewer disconnected")
}
