package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// ChangeType is the kind of row-level change carried by an event.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a row-level change notification pushed to clients. New and
// Old carry row snapshots; Old is only populated for UPDATE and DELETE.
type ChangeEvent struct {
	Schema string          `json:"schema"`
	Table  string          `json:"table"`
	Type   ChangeType      `json:"type"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
}

// Client represents a single subscriber connection. It's essentially a
// channel the realtime handler will drain.
type Client chan []byte

// Hub fans row-level change events out to the users they concern.
type Hub struct {
	users map[uint]map[string]Client
	mu    sync.RWMutex
}

// GlobalHub is the singleton instance of our Hub.
var GlobalHub = NewHub()

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		users: make(map[uint]map[string]Client),
	}
}

// Subscribe registers a new client channel for a user and returns the id
// needed to unsubscribe it.
func (h *Hub) Subscribe(userID uint, client Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[string]Client)
	}
	id := uuid.NewString()
	h.users[userID][id] = client
	return id
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(userID uint, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.users[userID]; ok {
		if client, ok := clients[id]; ok {
			delete(clients, id)
			close(client) // Signal the realtime handler to stop.
			if len(clients) == 0 {
				delete(h.users, userID)
			}
		}
	}
}

// Broadcast sends a change event to every connection of the given users.
// Duplicate user ids are de-duplicated so a client sees each event once.
func (h *Hub) Broadcast(userIDs []uint, event ChangeEvent) {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		return
	}

	seen := make(map[uint]bool, len(userIDs))

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range userIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true

		for _, client := range h.users[userID] {
			// Non-blocking send so a slow client cannot stall the hub.
			select {
			case client <- messageBytes:
			default:
			}
		}
	}
}
