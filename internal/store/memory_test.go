package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthuan-dev/bufforder-sub001/internal/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newThread(t *testing.T, s *MemoryStore, userID string) *models.Thread {
	t.Helper()
	th := &models.Thread{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    models.ThreadOpen,
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, s.CreateThread(context.Background(), th))
	return th
}

func appendMsg(t *testing.T, s *MemoryStore, threadID string, role models.SenderRole, text string, at time.Time) models.Message {
	t.Helper()
	m := models.Message{
		ID:         uuid.NewString(),
		ThreadID:   threadID,
		SenderRole: role,
		SenderID:   "sender",
		Text:       text,
		CreatedAt:  at,
	}
	require.NoError(t, s.AppendMessage(context.Background(), &m))
	return m
}

func TestMemoryStoreSingleOpenThread(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zerolog.Nop())
	first := newThread(t, s, "u1")

	err := s.CreateThread(ctx, &models.Thread{ID: uuid.NewString(), UserID: "u1", Status: models.ThreadOpen})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.FindOpenThread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = s.SetThreadStatus(ctx, first.ID, models.ThreadClosed, base)
	require.NoError(t, err)
	_, err = s.FindOpenThread(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	second := newThread(t, s, "u1")
	_, err = s.SetThreadStatus(ctx, first.ID, models.ThreadOpen, base)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestMemoryStoreRecordMessageCounters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zerolog.Nop())
	th := newThread(t, s, "u1")

	for i := 0; i < 3; i++ {
		_, err := s.RecordMessage(ctx, th.ID, "hi", base.Add(time.Duration(i)*time.Second), models.AudienceAdmin)
		require.NoError(t, err)
	}
	got, err := s.RecordMessage(ctx, th.ID, models.ImageSentinel, base.Add(time.Minute), models.AudienceUser)
	require.NoError(t, err)

	assert.Equal(t, 3, got.UnreadAdmin)
	assert.Equal(t, 1, got.UnreadUser)
	assert.Equal(t, models.ImageSentinel, got.LastMessageText)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(base.Add(time.Minute)))

	got, err = s.ResetUnread(ctx, th.ID, models.AudienceAdmin)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadAdmin)
	assert.Equal(t, 1, got.UnreadUser)

	_, err = s.RecordMessage(ctx, "missing", "x", base, models.AudienceAdmin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListMessagesPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zerolog.Nop())
	th := newThread(t, s, "u1")

	for i := 0; i < 5; i++ {
		appendMsg(t, s, th.ID, models.SenderUser, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	page1, more, err := s.ListMessages(ctx, th.ID, models.AudienceUser, models.Page{Number: 1, Limit: 2})
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, []string{"m3", "m4"}, texts(page1))

	page3, more, err := s.ListMessages(ctx, th.ID, models.AudienceUser, models.Page{Number: 3, Limit: 2})
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, []string{"m0"}, texts(page3))

	empty, more, err := s.ListMessages(ctx, th.ID, models.AudienceUser, models.Page{Number: 9, Limit: 2})
	require.NoError(t, err)
	assert.False(t, more)
	assert.Empty(t, empty)
}

func TestMemoryStoreRetentionAndSummaries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zerolog.Nop())
	th := newThread(t, s, "u1")

	appendMsg(t, s, th.ID, models.SenderUser, "old user", base)
	appendMsg(t, s, th.ID, models.SenderAdmin, "old admin", base.Add(time.Second))
	appendMsg(t, s, th.ID, models.SenderUser, "newest user", base.Add(2*time.Second))
	_, err := s.RecordMessage(ctx, th.ID, "newest user", base.Add(2*time.Second), models.AudienceAdmin)
	require.NoError(t, err)

	now := base.Add(2 * time.Hour)
	n, err := s.HideAgedUserMessages(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.HideAgedUserMessages(ctx, now.Add(-time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	changed, err := s.RefreshThreadSummaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	got, err := s.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, "old admin", got.LastMessageText)

	userView, _, err := s.ListMessages(ctx, th.ID, models.AudienceUser, models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"old admin"}, texts(userView))

	adminView, _, err := s.ListMessages(ctx, th.ID, models.AudienceAdmin, models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, adminView, 3)
}

func TestMemoryStoreRefreshClearsTextWhenNothingVisible(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zerolog.Nop())
	th := newThread(t, s, "u1")

	appendMsg(t, s, th.ID, models.SenderUser, "only", base)
	_, err := s.RecordMessage(ctx, th.ID, "only", base, models.AudienceAdmin)
	require.NoError(t, err)

	_, err = s.HideAgedUserMessages(ctx, base.Add(time.Minute), base.Add(time.Hour))
	require.NoError(t, err)
	_, err = s.RefreshThreadSummaries(ctx)
	require.NoError(t, err)

	got, err := s.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LastMessageText)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(base))
}

func TestMemoryStoreListThreads(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zerolog.Nop())

	quiet := newThread(t, s, "quiet")
	older := newThread(t, s, "older")
	newer := newThread(t, s, "newer")
	_, err := s.RecordMessage(ctx, older.ID, "Refund please", base, models.AudienceAdmin)
	require.NoError(t, err)
	_, err = s.RecordMessage(ctx, newer.ID, "hello", base.Add(time.Minute), models.AudienceAdmin)
	require.NoError(t, err)

	all, total, err := s.ListThreads(ctx, models.ThreadFilter{Page: models.Page{Number: 1, Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 3)
	assert.Equal(t, []string{newer.ID, older.ID, quiet.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	found, total, err := s.ListThreads(ctx, models.ThreadFilter{Search: "REFUND", Page: models.Page{Number: 1, Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, found, 1)
	assert.Equal(t, older.ID, found[0].ID)

	paged, total, err := s.ListThreads(ctx, models.ThreadFilter{Page: models.Page{Number: 2, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, paged, 1)
	assert.Equal(t, quiet.ID, paged[0].ID)
}

func TestMemoryStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zerolog.Nop())
	th := newThread(t, s, "u1")
	appendMsg(t, s, th.ID, models.SenderUser, "bye", base)

	require.NoError(t, s.DeleteThread(ctx, th.ID))
	assert.ErrorIs(t, s.DeleteThread(ctx, th.ID), ErrNotFound)

	msgs, _, err := s.ListMessages(ctx, th.ID, models.AudienceAdmin, models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	err = s.AppendMessage(ctx, &models.Message{ID: uuid.NewString(), ThreadID: th.ID, Text: "late"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreMarkReadAndHideForAdmin(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zerolog.Nop())
	th := newThread(t, s, "u1")
	appendMsg(t, s, th.ID, models.SenderUser, "q1", base)
	appendMsg(t, s, th.ID, models.SenderUser, "q2", base.Add(time.Second))
	appendMsg(t, s, th.ID, models.SenderAdmin, "a1", base.Add(2*time.Second))

	n, err := s.MarkMessagesRead(ctx, th.ID, models.AudienceAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.MarkMessagesRead(ctx, th.ID, models.AudienceUser)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.HideThreadForAdmin(ctx, th.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	adminView, _, err := s.ListMessages(ctx, th.ID, models.AudienceAdmin, models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, adminView)

	userView, _, err := s.ListMessages(ctx, th.ID, models.AudienceUser, models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, userView, 3)
}

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zerolog.Nop())
	s.PutUser(models.User{ID: "u1", Name: "Lan", Phone: "0901234567"})

	u, err := s.FindUserByPhone(ctx, "0901234567")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = s.FindUserByPhone(ctx, "000")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.TouchLastSeen(ctx, "u1", base))
	stored, ok := s.User("u1")
	require.True(t, ok)
	require.NotNil(t, stored.LastSeenAt)
	assert.True(t, stored.LastSeenAt.Equal(base))
}

func TestChronologicalDropsLookaheadRow(t *testing.T) {
	in := []models.Message{{Text: "c"}, {Text: "b"}, {Text: "a"}}

	out, more, err := chronological(in, 2)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, []string{"b", "c"}, texts(out))

	out, more, err = chronological(in[:2], 2)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, []string{"b", "c"}, texts(out))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now`, escapeLike("50% off_now"))
}

func texts(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}
