// Package store persists chat threads and messages. Backends share one
// contract so the chat service and the retention sweeper never know which
// database is behind them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vthuan-dev/bufforder-sub001/internal/models"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when creating a second open thread for a user.
	ErrConflict = errors.New("store: conflict")
)

type ThreadStore interface {
	FindOpenThread(ctx context.Context, userID string) (*models.Thread, error)
	// CreateThread inserts t, returning ErrConflict when the user already
	// owns an open thread.
	CreateThread(ctx context.Context, t *models.Thread) error
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	// RecordMessage caches the summary and bumps the unread counter of
	// unreadFor in a single atomic update.
	RecordMessage(ctx context.Context, threadID, summary string, at time.Time, unreadFor models.Audience) (*models.Thread, error)
	ResetUnread(ctx context.Context, threadID string, a models.Audience) (*models.Thread, error)
	SetThreadStatus(ctx context.Context, threadID string, status models.ThreadStatus, at time.Time) (*models.Thread, error)
	// DeleteThread removes the thread and every message in it.
	DeleteThread(ctx context.Context, threadID string) error
	ListThreads(ctx context.Context, filter models.ThreadFilter) ([]models.Thread, int64, error)
	// RefreshThreadSummaries recomputes every thread's last message from the
	// newest message still visible to the user. Threads with none left keep
	// lastMessageAt and get an empty text. Returns the number of threads changed.
	RefreshThreadSummaries(ctx context.Context) (int64, error)
}

type MessageStore interface {
	AppendMessage(ctx context.Context, m *models.Message) error
	// ListMessages returns one page of messages visible to a, oldest first.
	// Page 1 is the newest page.
	ListMessages(ctx context.Context, threadID string, a models.Audience, page models.Page) ([]models.Message, bool, error)
	// MarkMessagesRead flags the other side's messages as read by reader.
	MarkMessagesRead(ctx context.Context, threadID string, reader models.Audience) (int64, error)
	HideAgedUserMessages(ctx context.Context, cutoff, now time.Time) (int64, error)
	// ApplyUserRetention hides user messages created before cutoff and then
	// refreshes thread summaries, as one unit where the backend allows it.
	ApplyUserRetention(ctx context.Context, cutoff, now time.Time) (hidden, refreshed int64, err error)
	HideThreadForAdmin(ctx context.Context, threadID string, now time.Time) (int64, error)
}

// UserDirectory is the narrow view of user records the chat subsystem needs.
type UserDirectory interface {
	FindUserByPhone(ctx context.Context, phone string) (*models.User, error)
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

type Store interface {
	ThreadStore
	MessageStore
	UserDirectory
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
