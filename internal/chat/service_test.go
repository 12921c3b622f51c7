package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthuan-dev/bufforder-sub001/internal/auth"
	"github.com/vthuan-dev/bufforder-sub001/internal/models"
	"github.com/vthuan-dev/bufforder-sub001/internal/store"
)

type recordingNotifier struct {
	mu      sync.Mutex
	created []*models.Message
	deleted []string
}

func (r *recordingNotifier) MessageCreated(_ context.Context, _ *models.Thread, msg *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, msg)
}

func (r *recordingNotifier) ThreadDeleted(_ context.Context, t *models.Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, t.ID)
}

type fixedPresence map[string]bool

func (p fixedPresence) IsOnline(userID string) bool { return p[userID] }

var (
	alice = auth.Identity{ID: "alice", Role: models.SenderUser}
	bob   = auth.Identity{ID: "bob", Role: models.SenderUser}
	staff = auth.Identity{ID: "staff-1", Role: models.SenderAdmin}
)

func newService(t *testing.T, opts ...Option) (*Service, *store.MemoryStore, *recordingNotifier) {
	t.Helper()
	st := store.NewMemoryStore(zerolog.Nop())
	n := &recordingNotifier{}
	opts = append([]Option{WithNotifier(n)}, opts...)
	return NewService(st, zerolog.Nop(), opts...), st, n
}

func TestOpenThreadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	first, err := svc.OpenThread(ctx, alice.ID, "10.0.0.1")
	require.NoError(t, err)
	second, err := svc.OpenThread(ctx, alice.ID, "10.0.0.2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "10.0.0.1", second.IPAddress)

	list, err := svc.ListThreads(ctx, "", svc.Page(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
}

func TestOpenThreadConcurrentCallersShareThread(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			th, err := svc.OpenThread(ctx, alice.ID, "")
			if err == nil {
				ids[i] = th.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestSendCountsUnreadForOtherSide(t *testing.T) {
	ctx := context.Background()
	svc, _, n := newService(t)

	th, err := svc.OpenThread(ctx, alice.ID, "")
	require.NoError(t, err)

	const sent = 4
	var last *models.Thread
	for i := 0; i < sent; i++ {
		_, last, err = svc.Send(ctx, alice, SendInput{ThreadID: th.ID, Text: "hello"})
		require.NoError(t, err)
	}
	assert.Equal(t, sent, last.UnreadAdmin)
	assert.Equal(t, 0, last.UnreadUser)

	_, last, err = svc.Send(ctx, staff, SendInput{ThreadID: th.ID, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, sent, last.UnreadAdmin)
	assert.Equal(t, 1, last.UnreadUser)
	assert.Equal(t, "hi", last.LastMessageText)

	assert.Len(t, n.created, sent+1)
}

func TestSendWithoutThreadOpensOne(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	msg, th, err := svc.Send(ctx, alice, SendInput{Text: "first contact"})
	require.NoError(t, err)
	assert.Equal(t, th.ID, msg.ThreadID)
	assert.True(t, msg.ReadByUser)
	assert.False(t, msg.ReadByAdmin)

	_, _, err = svc.Send(ctx, staff, SendInput{Text: "to whom"})
	assert.ErrorIs(t, err, ErrThreadRequired)
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	svc, st, n := newService(t)

	_, _, err := svc.Send(ctx, alice, SendInput{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	// Rejected before anything is persisted, including the lazy thread.
	_, err = st.FindOpenThread(ctx, alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, n.created)

	img := "/uploads/x.png"
	msg, th, err := svc.Send(ctx, alice, SendInput{ImageURL: &img})
	require.NoError(t, err)
	assert.Equal(t, models.ImageSentinel, th.LastMessageText)
	assert.True(t, msg.HasImage())
}

func TestForeignThreadIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	th, err := svc.OpenThread(ctx, alice.ID, "")
	require.NoError(t, err)

	_, _, err = svc.Send(ctx, bob, SendInput{ThreadID: th.ID, Text: "hijack"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.ListMessages(ctx, bob, th.ID, svc.Page(1, 10))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.AuthorizeThread(ctx, staff, th.ID)
	assert.NoError(t, err)
}

func TestUserHistoryClearsUserUnread(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)

	th, err := svc.OpenThread(ctx, alice.ID, "")
	require.NoError(t, err)
	_, _, err = svc.Send(ctx, staff, SendInput{ThreadID: th.ID, Text: "one"})
	require.NoError(t, err)
	_, _, err = svc.Send(ctx, staff, SendInput{ThreadID: th.ID, Text: "two"})
	require.NoError(t, err)

	page, err := svc.ListMessages(ctx, alice, th.ID, svc.Page(1, 0))
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, 50, page.Limit)

	got, err := st.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadUser)

	page, err = svc.ListMessages(ctx, staff, th.ID, svc.Page(1, 10))
	require.NoError(t, err)
	for _, m := range page.Messages {
		assert.True(t, m.ReadByUser)
	}
}

func TestMarkReadByStaff(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, th, err := svc.Send(ctx, alice, SendInput{Text: "help"})
	require.NoError(t, err)
	require.Equal(t, 1, th.UnreadAdmin)

	th, err = svc.MarkReadByStaff(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, th.UnreadAdmin)

	_, err = svc.MarkReadByStaff(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteThreadNotifies(t *testing.T) {
	ctx := context.Background()
	svc, _, n := newService(t)

	_, th, err := svc.Send(ctx, alice, SendInput{Text: "bye"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteThread(ctx, th.ID))
	assert.Equal(t, []string{th.ID}, n.deleted)

	_, err = svc.ListMessages(ctx, staff, th.ID, svc.Page(1, 10))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteThread(ctx, th.ID), store.ErrNotFound)
}

func TestCloseThreadThenReopen(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	first, err := svc.OpenThread(ctx, alice.ID, "")
	require.NoError(t, err)
	closed, err := svc.CloseThread(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadClosed, closed.Status)

	_, _, err = svc.Send(ctx, alice, SendInput{ThreadID: first.ID, Text: "late"})
	assert.ErrorIs(t, err, ErrThreadClosed)

	second, err := svc.OpenThread(ctx, alice.ID, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestListThreadsAnnotatesPresence(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, _, _ := newService(t,
		WithPresence(fixedPresence{alice.ID: true}),
		WithClock(func() time.Time { clock = clock.Add(time.Second); return clock }),
	)

	_, _, err := svc.Send(ctx, alice, SendInput{Text: "from alice"})
	require.NoError(t, err)
	_, _, err = svc.Send(ctx, bob, SendInput{Text: "from bob"})
	require.NoError(t, err)

	list, err := svc.ListThreads(ctx, "", svc.Page(1, 10))
	require.NoError(t, err)
	require.Len(t, list.Threads, 2)
	assert.Equal(t, bob.ID, list.Threads[0].UserID)
	assert.False(t, list.Threads[0].Online)
	assert.True(t, list.Threads[1].Online)

	list, err = svc.ListThreads(ctx, "ALICE", svc.Page(1, 10))
	require.NoError(t, err)
	require.Len(t, list.Threads, 1)
	assert.Equal(t, alice.ID, list.Threads[0].UserID)
}

func TestHideHistoryForStaff(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, th, err := svc.Send(ctx, alice, SendInput{Text: "secret"})
	require.NoError(t, err)

	n, err := svc.HideHistoryForStaff(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	staffView, err := svc.ListMessages(ctx, staff, th.ID, svc.Page(1, 10))
	require.NoError(t, err)
	assert.Empty(t, staffView.Messages)

	userView, err := svc.ListMessages(ctx, alice, th.ID, svc.Page(1, 10))
	require.NoError(t, err)
	assert.Len(t, userView.Messages, 1)
}

func TestLookupUserByPhone(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)
	st.PutUser(models.User{ID: alice.ID, Name: "Alice", Phone: "0900000001"})

	u, err := svc.LookupUserByPhone(ctx, " 0900000001 ")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	_, err = svc.LookupUserByPhone(ctx, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPageBounds(t *testing.T) {
	svc, _, _ := newService(t, WithPageSizes(20, 100))

	assert.Equal(t, models.Page{Number: 1, Limit: 20}, svc.Page(0, 0))
	assert.Equal(t, models.Page{Number: 3, Limit: 100}, svc.Page(3, 1000))
}

func TestSendRejectsUnknownRole(t *testing.T) {
	ctx := context.Background()
	svc, st, n := newService(t)

	th, err := svc.OpenThread(ctx, alice.ID, "")
	require.NoError(t, err)

	ghost := auth.Identity{ID: "ghost", Role: models.SenderRole("bot")}
	_, _, err = svc.Send(ctx, ghost, SendInput{ThreadID: th.ID, Text: "hi"})
	assert.ErrorIs(t, err, ErrUnknownSender)
	assert.Empty(t, n.created)

	got, err := st.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UnreadAdmin)
	assert.Zero(t, got.UnreadUser)
}

// countingReads wraps the memory store to count unread resets.
type countingReads struct {
	*store.MemoryStore
	resets int
}

func (c *countingReads) ResetUnread(ctx context.Context, threadID string, a models.Audience) (*models.Thread, error) {
	c.resets++
	return c.MemoryStore.ResetUnread(ctx, threadID, a)
}

func TestUserHistorySkipsResetWhenNothingUnread(t *testing.T) {
	ctx := context.Background()
	st := &countingReads{MemoryStore: store.NewMemoryStore(zerolog.Nop())}
	svc := NewService(st, zerolog.Nop())

	th, err := svc.OpenThread(ctx, alice.ID, "")
	require.NoError(t, err)
	_, _, err = svc.Send(ctx, alice, SendInput{ThreadID: th.ID, Text: "hello"})
	require.NoError(t, err)

	_, err = svc.ListMessages(ctx, alice, th.ID, svc.Page(1, 10))
	require.NoError(t, err)
	assert.Zero(t, st.resets)

	_, _, err = svc.Send(ctx, staff, SendInput{ThreadID: th.ID, Text: "reply"})
	require.NoError(t, err)
	_, err = svc.ListMessages(ctx, alice, th.ID, svc.Page(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, st.resets)
}
