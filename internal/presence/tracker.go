// Package presence counts live realtime connections per end-user.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vthuan-dev/bufforder-sub001/internal/metrics"
	"github.com/vthuan-dev/bufforder-sub001/internal/store"
)

// Notifier is told when a user goes online or offline. It is called with
// the tracker's lock held and must not block or call back into the tracker.
type Notifier interface {
	PresenceChanged(ctx context.Context, userID string, online bool)
}

// Tracker is process-local. A restart drops all entries, which matches the
// connections being severed.
//
// Every online/offline transition takes a new epoch for the user. An offline
// notification is only sent if no newer transition happened while last-seen
// was being persisted, so staff never see a stale offline after a reconnect.
type Tracker struct {
	mu       sync.Mutex
	counts   map[string]int
	epochs   map[string]uint64
	seq      uint64
	users    store.UserDirectory
	notifier Notifier
	now      func() time.Time
	log      zerolog.Logger
}

func NewTracker(users store.UserDirectory, notifier Notifier, log zerolog.Logger) *Tracker {
	return &Tracker{
		counts:   make(map[string]int),
		epochs:   make(map[string]uint64),
		users:    users,
		notifier: notifier,
		now:      time.Now,
		log:      log.With().Str("component", "presence").Logger(),
	}
}

// Connect records one more connection for userID and reports whether it is
// the user's first.
func (t *Tracker) Connect(ctx context.Context, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[userID]++
	if t.counts[userID] != 1 {
		return false
	}
	t.seq++
	t.epochs[userID] = t.seq
	metrics.OnlineUsers.Set(float64(len(t.counts)))
	t.log.Debug().Str("user_id", userID).Msg("user online")
	if t.notifier != nil {
		t.notifier.PresenceChanged(ctx, userID, true)
	}
	return true
}

// Disconnect drops one connection for userID. When it was the last one the
// entry is removed, last-seen is persisted and staff are told. It reports
// whether the offline notification was sent; a reconnect that races the
// last-seen write suppresses it.
func (t *Tracker) Disconnect(ctx context.Context, userID string) bool {
	t.mu.Lock()
	n, ok := t.counts[userID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	if n > 1 {
		t.counts[userID] = n - 1
		t.mu.Unlock()
		return false
	}
	delete(t.counts, userID)
	t.seq++
	epoch := t.seq
	t.epochs[userID] = epoch
	metrics.OnlineUsers.Set(float64(len(t.counts)))
	t.mu.Unlock()

	if t.users != nil {
		if err := t.users.TouchLastSeen(ctx, userID, t.now()); err != nil {
			t.log.Warn().Err(err).Str("user_id", userID).Msg("persist last seen failed")
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.epochs[userID] != epoch {
		t.log.Debug().Str("user_id", userID).Msg("user reconnected, offline dropped")
		return false
	}
	delete(t.epochs, userID)
	t.log.Debug().Str("user_id", userID).Msg("user offline")
	if t.notifier != nil {
		t.notifier.PresenceChanged(ctx, userID, false)
	}
	return true
}

func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userID] > 0
}

func (t *Tracker) Connections(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userID]
}

func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}
