// Package websocket pushes auth and recipe notifications to open pages.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

const (
	EntityAuth   = "auth"
	EntityRecipe = "recipe"
)

// Message is one notification. Type is "<entity>_<action>", for example
// "auth_signed_in" or "recipe_created".
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     string         `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

func NewMessage(entity, action, id string, extra map[string]any) Message {
	return Message{
		Type:   entity + "_" + action,
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// AuthMessage describes the signed-in user, or the signed-out state when
// userID is empty.
func AuthMessage(userID, username string) Message {
	if userID == "" {
		return NewMessage(EntityAuth, "signed_out", "", nil)
	}
	var extra map[string]any
	if username != "" {
		extra = map[string]any{"username": username}
	}
	return NewMessage(EntityAuth, "signed_in", userID, extra)
}

// Hub tracks connected pages and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	last    map[string][]byte
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		last:    make(map[string][]byte),
		logger:  logger,
	}
}

// Register adds c and queues the latest auth message so a page opened
// after sign-in still learns the current state.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if data, ok := h.last[EntityAuth]; ok {
		c.send <- data
	}
	h.mu.Unlock()
}

// Unregister removes c and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every client. Clients with a full buffer miss it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	if msg.Entity == EntityAuth {
		h.mu.Lock()
		h.last[EntityAuth] = data
		h.mu.Unlock()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("dropped broadcast", "type", msg.Type, "clients", dropped)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
