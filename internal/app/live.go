// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from the same host
	},
}

// LiveMessage is one frame of the /ws/live feed.
type LiveMessage struct {
	Type string    `json:"type"` // "sample", "status", "notice", "event", "exercise"
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans live messages out to websocket clients. A client that cannot
// keep up loses messages instead of slowing the sensor path.
type Hub struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*liveClient]struct{})}
}

// Broadcast sends data to every client. It never blocks.
func (h *Hub) Broadcast(typ string, data any) {
	payload, err := json.Marshal(LiveMessage{Type: typ, Time: time.Now(), Data: data})
	if err != nil {
		log.Printf("live: marshal %s: %v", typ, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: websocket upgrade error: %v", err)
		return
	}
	c := &liveClient{conn: conn, send: make(chan []byte, 256)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)

	// The feed is one-way; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("live: websocket error: %v", err)
			}
			break
		}
	}
	h.remove(c)
}

func (h *Hub) writePump(c *liveClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) remove(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
