package realtime

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub is the room registry: room key to the set of connections in it.
// Broadcasts never block on a slow connection; a full send buffer closes it.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		log:   log.With().Str("component", "realtime-hub").Logger(),
	}
}

// Join adds c to room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// LeaveAll removes c from every room it joined.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
}

// InRoom reports whether c has joined room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][c]
	return ok
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast delivers payload once to every connection in any of rooms.
func (h *Hub) Broadcast(payload []byte, rooms ...string) int {
	return h.BroadcastExcept(nil, payload, rooms...)
}

// BroadcastExcept is Broadcast skipping one connection, usually the sender.
func (h *Hub) BroadcastExcept(except *Client, payload []byte, rooms ...string) int {
	h.mu.RLock()
	targets := make(map[*Client]struct{})
	for _, room := range rooms {
		for c := range h.rooms[room] {
			if c != except {
				targets[c] = struct{}{}
			}
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for c := range targets {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		h.log.Warn().Str("client", c.identity.ID).Msg("send buffer full, closing slow connection")
		c.close()
	}
	return delivered
}

// CloseAll disconnects every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make(map[*Client]struct{})
	for _, members := range h.rooms {
		for c := range members {
			all[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for c := range all {
		c.close()
	}
}
