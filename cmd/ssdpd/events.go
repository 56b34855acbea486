package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// deviceEvent is the JSON payload broadcast to /events subscribers each
// time the locator emits a device-available or device-unavailable event.
type deviceEvent struct {
	Type             string `json:"type"` // "available" or "unavailable"
	USN              string `json:"usn"`
	NotificationType string `json:"notificationType"`
	Location         string `json:"location,omitempty"`
	RemoteAddr       string `json:"remoteAddr,omitempty"`
	NewlyDiscovered  bool   `json:"newlyDiscovered,omitempty"`
	Expired          bool   `json:"expired,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// eventHub fans out deviceEvents to every connected WebSocket client.
type eventHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *eventHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ssdpd] websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go h.readUntilClosed(conn)
}

// readUntilClosed discards inbound frames (subscribers are write-only)
// and removes the connection once the client disconnects.
func (h *eventHub) readUntilClosed(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *eventHub) publish(evt deviceEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[ssdpd] failed to marshal event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}
