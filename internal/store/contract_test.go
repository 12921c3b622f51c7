package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthuan-dev/bufforder-sub001/internal/models"
)

// testStoreContract runs the behavior every backend must share. Ids and
// search tokens are unique per run so it can target a shared database.
func testStoreContract(t *testing.T, s Store) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	openThread := func(t *testing.T, userID string) *models.Thread {
		t.Helper()
		th := &models.Thread{
			ID:        uuid.NewString(),
			UserID:    userID,
			Status:    models.ThreadOpen,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, s.CreateThread(context.Background(), th))
		t.Cleanup(func() { _ = s.DeleteThread(context.Background(), th.ID) })
		return th
	}
	send := func(t *testing.T, threadID string, role models.SenderRole, text string, at time.Time) {
		t.Helper()
		ctx := context.Background()
		m := &models.Message{
			ID:          uuid.NewString(),
			ThreadID:    threadID,
			SenderRole:  role,
			SenderID:    "contract",
			Text:        text,
			ReadByAdmin: role == models.SenderAdmin,
			ReadByUser:  role == models.SenderUser,
			CreatedAt:   at,
		}
		require.NoError(t, s.AppendMessage(ctx, m))
		_, err := s.RecordMessage(ctx, threadID, m.SummaryText(), at, models.AudienceFor(role).Other())
		require.NoError(t, err)
	}

	t.Run("one open thread per user", func(t *testing.T) {
		ctx := context.Background()
		userID := "contract-" + uuid.NewString()
		first := openThread(t, userID)

		err := s.CreateThread(ctx, &models.Thread{
			ID: uuid.NewString(), UserID: userID, Status: models.ThreadOpen, CreatedAt: now, UpdatedAt: now,
		})
		assert.ErrorIs(t, err, ErrConflict)

		got, err := s.FindOpenThread(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)

		_, err = s.SetThreadStatus(ctx, first.ID, models.ThreadClosed, now)
		require.NoError(t, err)
		second := openThread(t, userID)
		got, err = s.FindOpenThread(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
	})

	t.Run("delete cascades to messages", func(t *testing.T) {
		ctx := context.Background()
		th := openThread(t, "contract-"+uuid.NewString())
		send(t, th.ID, models.SenderUser, "hello", now)
		send(t, th.ID, models.SenderAdmin, "hi", now.Add(time.Second))

		require.NoError(t, s.DeleteThread(ctx, th.ID))
		_, err := s.GetThread(ctx, th.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		msgs, _, err := s.ListMessages(ctx, th.ID, models.AudienceAdmin, models.Page{Number: 1, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, msgs)
		assert.ErrorIs(t, s.DeleteThread(ctx, th.ID), ErrNotFound)
	})

	t.Run("late record keeps newest summary", func(t *testing.T) {
		ctx := context.Background()
		th := openThread(t, "contract-"+uuid.NewString())

		_, err := s.RecordMessage(ctx, th.ID, "newer", now.Add(2*time.Second), models.AudienceAdmin)
		require.NoError(t, err)
		got, err := s.RecordMessage(ctx, th.ID, "older", now.Add(time.Second), models.AudienceAdmin)
		require.NoError(t, err)

		assert.Equal(t, "newer", got.LastMessageText)
		require.NotNil(t, got.LastMessageAt)
		assert.True(t, got.LastMessageAt.Equal(now.Add(2*time.Second)))
		assert.Equal(t, 2, got.UnreadAdmin)
	})

	t.Run("retention hides aged user messages and refreshes summaries", func(t *testing.T) {
		ctx := context.Background()
		mixed := openThread(t, "contract-"+uuid.NewString())
		staffAt := now.Add(-3 * time.Hour)
		send(t, mixed.ID, models.SenderAdmin, "staff answer", staffAt)
		send(t, mixed.ID, models.SenderUser, "aged question", now.Add(-2*time.Hour))
		send(t, mixed.ID, models.SenderUser, "fresh question", now.Add(-59*time.Minute))

		onlyUser := openThread(t, "contract-"+uuid.NewString())
		lonelyAt := now.Add(-2 * time.Hour)
		send(t, onlyUser.ID, models.SenderUser, "anyone there", lonelyAt)

		hidden, _, err := s.ApplyUserRetention(ctx, now.Add(-time.Hour), now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, hidden, int64(2))

		page := models.Page{Number: 1, Limit: 10}
		userView, _, err := s.ListMessages(ctx, mixed.ID, models.AudienceUser, page)
		require.NoError(t, err)
		require.Len(t, userView, 2)
		assert.Equal(t, "staff answer", userView[0].Text)
		assert.Equal(t, "fresh question", userView[1].Text)

		staffView, _, err := s.ListMessages(ctx, mixed.ID, models.AudienceAdmin, page)
		require.NoError(t, err)
		assert.Len(t, staffView, 3)

		got, err := s.GetThread(ctx, mixed.ID)
		require.NoError(t, err)
		assert.Equal(t, "fresh question", got.LastMessageText)

		got, err = s.GetThread(ctx, onlyUser.ID)
		require.NoError(t, err)
		assert.Empty(t, got.LastMessageText)
		require.NotNil(t, got.LastMessageAt)
		assert.True(t, got.LastMessageAt.Equal(lonelyAt))

		// A second pass finds nothing new in these threads.
		_, _, err = s.ApplyUserRetention(ctx, now.Add(-time.Hour), now.Add(time.Minute))
		require.NoError(t, err)
		userView, _, err = s.ListMessages(ctx, mixed.ID, models.AudienceUser, page)
		require.NoError(t, err)
		assert.Len(t, userView, 2)
	})

	t.Run("search matches last message text literally", func(t *testing.T) {
		ctx := context.Background()
		token := uuid.NewString()[:8]
		older := openThread(t, "contract-"+uuid.NewString())
		newer := openThread(t, "contract-"+uuid.NewString())
		wild := openThread(t, "contract-"+uuid.NewString())
		send(t, older.ID, models.SenderUser, "Alpha "+token, now.Add(time.Second))
		send(t, newer.ID, models.SenderUser, "beta "+token, now.Add(2*time.Second))
		send(t, wild.ID, models.SenderUser, "50%_off.* "+token, now.Add(3*time.Second))

		threads, total, err := s.ListThreads(ctx, models.ThreadFilter{Search: "ALPHA " + token, Page: models.Page{Number: 1, Limit: 10}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, threads, 1)
		assert.Equal(t, older.ID, threads[0].ID)

		threads, total, err = s.ListThreads(ctx, models.ThreadFilter{Search: "%_off.* " + token, Page: models.Page{Number: 1, Limit: 10}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, threads, 1)
		assert.Equal(t, wild.ID, threads[0].ID)

		threads, total, err = s.ListThreads(ctx, models.ThreadFilter{Search: token, Page: models.Page{Number: 1, Limit: 2}})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, threads, 2)
		assert.Equal(t, wild.ID, threads[0].ID)
		assert.Equal(t, newer.ID, threads[1].ID)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	testStoreContract(t, NewMemoryStore(zerolog.Nop()))
}
