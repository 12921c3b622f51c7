package realtime

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/vthuan-dev/bufforder-sub001/internal/auth"
)

func testClient(h *Hub, id string, buffer int) *Client {
	return &Client{
		hub:      h,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		identity: auth.Identity{ID: id},
		rooms:    make(map[string]struct{}),
		log:      zerolog.Nop(),
	}
}

func TestHubRooms(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a := testClient(h, "a", 4)
	b := testClient(h, "b", 4)

	h.Join(a, "thread:1")
	h.Join(a, "thread:1")
	h.Join(b, "thread:1")
	h.Join(a, StaffRoom)
	assert.Equal(t, 2, h.RoomSize("thread:1"))

	// A client in several target rooms receives one copy.
	assert.Equal(t, 2, h.Broadcast([]byte("x"), "thread:1", StaffRoom))
	assert.Len(t, a.send, 1)

	assert.Equal(t, 1, h.BroadcastExcept(a, []byte("y"), "thread:1"))
	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 2)

	h.Leave(b, "thread:1")
	assert.False(t, h.InRoom(b, "thread:1"))

	h.LeaveAll(a)
	assert.Zero(t, h.RoomSize("thread:1"))
	assert.Zero(t, h.RoomSize(StaffRoom))
	assert.Empty(t, a.rooms)
}

func TestHubClosesSlowClient(t *testing.T) {
	h := NewHub(zerolog.Nop())
	slow := testClient(h, "slow", 1)
	h.Join(slow, StaffRoom)

	assert.Equal(t, 1, h.Broadcast([]byte("1"), StaffRoom))
	assert.Equal(t, 0, h.Broadcast([]byte("2"), StaffRoom))

	select {
	case <-slow.done:
	default:
		t.Fatal("slow client was not closed")
	}
}
