package ws

import (
	"sync"

	"dm-service/internal/observability"
)

// Hub is the presence registry and delivery router. Membership is only
// changed by Lifecycle; everything else reads.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		users:   make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// join binds c to userID. When it is the user's first connection the
// online status goes out to every connection, c included, before the lock
// is released.
func (h *Hub) join(c *Client, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.users[userID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.users[userID] = conns
	}
	conns[c] = struct{}{}
	h.clients[c] = struct{}{}

	if len(conns) != 1 {
		return false
	}
	observability.SetOnlineUsers(len(h.users))
	h.broadcastLocked(encodeFrame(EventUserStatus, UserStatusPayload{UserID: userID, IsOnline: true}))
	return true
}

// leave unbinds c. When it was the user's last connection the offline
// status goes out to every remaining connection.
func (h *Hub) leave(c *Client, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c)
	conns, ok := h.users[userID]
	if !ok {
		return false
	}
	if _, member := conns[c]; !member {
		return false
	}
	delete(conns, c)
	if len(conns) > 0 {
		return false
	}
	delete(h.users, userID)
	observability.SetOnlineUsers(len(h.users))
	h.broadcastLocked(encodeFrame(EventUserStatus, UserStatusPayload{UserID: userID, IsOnline: false}))
	return true
}

func (h *Hub) broadcastLocked(frame []byte) {
	for c := range h.clients {
		c.enqueue(frame)
	}
}

// RouteToUser queues frame on every live connection of userID. It reports
// false when the user has none; that is not an error.
func (h *Hub) RouteToUser(userID string, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.users[userID]
	if len(conns) == 0 {
		return false
	}
	for c := range conns {
		c.enqueue(frame)
	}
	return true
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Close shuts every connection down.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
