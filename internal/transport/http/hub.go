package http

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// conn is one registered websocket connection. The send channel feeds a
// single writer goroutine so the socket never sees concurrent writes.
type conn struct {
	id   string
	sock *websocket.Conn
	send chan []byte
}

func (c *conn) writePump() {
	for msg := range c.send {
		if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debug().Err(err).Str("conn", c.id).Msg("ws write")
			return
		}
	}
}

// Hub holds the live connection set and implements app.Publisher. Fan-out
// is fire-and-forget: unknown targets are skipped and a full send buffer
// drops the message rather than blocking the publisher.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*conn)}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(connID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if ok {
		delete(h.conns, connID)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) Send(connID, event string, payload any) {
	data, err := json.Marshal(outboundMessage{Type: event, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal outbound event")
		return
	}
	h.mu.RLock()
	h.deliverLocked(connID, data)
	h.mu.RUnlock()
}

func (h *Hub) SendMany(connIDs []string, event string, payload any) {
	data, err := json.Marshal(outboundMessage{Type: event, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal outbound event")
		return
	}
	h.mu.RLock()
	for _, id := range connIDs {
		h.deliverLocked(id, data)
	}
	h.mu.RUnlock()
}

func (h *Hub) deliverLocked(connID string, data []byte) {
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		// slow consumer, drop rather than block the publisher
		log.Debug().Str("conn", connID).Msg("send buffer full, dropping")
	}
}
