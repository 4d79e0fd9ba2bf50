package ws

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub is the per-process registry of session broadcast groups. Membership
// checks happen at the gateway surface before Join is called; the hub itself
// only tracks which connections belong to which group and fans events out.
type Hub struct {
	mu     sync.RWMutex
	groups map[uint]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		groups: make(map[uint]map[*Client]bool),
	}
}

func (h *Hub) Join(sessionID uint, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[sessionID] == nil {
		h.groups[sessionID] = make(map[*Client]bool)
	}
	h.groups[sessionID][c] = true
	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"conn_id":    c.ID,
		"members":    len(h.groups[sessionID]),
	}).Debug("ws: client joined session group")
}

func (h *Hub) Leave(sessionID uint, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sessionID, c)
}

// RemoveClient detaches a connection from every group it joined. Called when
// the read loop exits.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID := range h.groups {
		h.removeLocked(sessionID, c)
	}
}

func (h *Hub) removeLocked(sessionID uint, c *Client) {
	group, ok := h.groups[sessionID]
	if !ok || !group[c] {
		return
	}
	delete(group, c)
	if len(group) == 0 {
		delete(h.groups, sessionID)
	}
}

// Sessions returns the ids of the groups a connection currently belongs to.
func (h *Hub) Sessions(c *Client) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ids []uint
	for sessionID, group := range h.groups {
		if group[c] {
			ids = append(ids, sessionID)
		}
	}
	return ids
}

// Broadcast delivers an event to every member of a session group. It never
// fails the caller; delivery problems surface as dropped connections.
func (h *Hub) Broadcast(sessionID uint, evt Event) {
	h.publish(sessionID, nil, evt)
}

// BroadcastExcept delivers an event to every member except the sender.
func (h *Hub) BroadcastExcept(sessionID uint, sender *Client, evt Event) {
	h.publish(sessionID, sender, evt)
}

func (h *Hub) publish(sessionID uint, except *Client, evt Event) {
	h.mu.RLock()
	group := h.groups[sessionID]
	targets := make([]*Client, 0, len(group))
	for c := range group {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Send(evt)
	}
}
