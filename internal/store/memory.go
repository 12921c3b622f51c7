package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vthuan-dev/bufforder-sub001/internal/models"
)

type memoryMessage struct {
	seq uint64
	msg models.Message
}

// MemoryStore is a mutex-based in-memory Store. It backs the tests and
// single-process demos; state is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	seq      uint64
	threads  map[string]*models.Thread
	messages map[string][]*memoryMessage // thread ID -> messages in insert order
	users    map[string]*models.User
	log      zerolog.Logger
}

func NewMemoryStore(log zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		threads:  make(map[string]*models.Thread),
		messages: make(map[string][]*memoryMessage),
		users:    make(map[string]*models.User),
		log:      log.With().Str("component", "memory-store").Logger(),
	}
}

// PutUser adds or replaces a user record.
func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// User returns a copy of the stored user record.
func (s *MemoryStore) User(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, false
	}
	return *u, true
}

func (s *MemoryStore) Ping(ctx context.Context) error  { return nil }
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func (s *MemoryStore) FindOpenThread(ctx context.Context, userID string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t := s.openThreadLocked(userID); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) openThreadLocked(userID string) *models.Thread {
	for _, t := range s.threads {
		if t.UserID == userID && t.Status == models.ThreadOpen {
			return t
		}
	}
	return nil
}

func (s *MemoryStore) CreateThread(ctx context.Context, t *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[t.ID]; exists {
		return ErrConflict
	}
	if t.Status == models.ThreadOpen && s.openThreadLocked(t.UserID) != nil {
		return ErrConflict
	}
	cp := *t
	s.threads[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) RecordMessage(ctx context.Context, threadID, summary string, at time.Time, unreadFor models.Audience) (*models.Thread, error) {
	return s.updateThread(threadID, func(t *models.Thread) {
		if t.LastMessageAt == nil || !t.LastMessageAt.After(at) {
			at := at
			t.LastMessageAt = &at
			t.LastMessageText = summary
		}
		if unreadFor == models.AudienceAdmin {
			t.UnreadAdmin++
		} else {
			t.UnreadUser++
		}
		if at.After(t.UpdatedAt) {
			t.UpdatedAt = at
		}
	})
}

func (s *MemoryStore) ResetUnread(ctx context.Context, threadID string, a models.Audience) (*models.Thread, error) {
	return s.updateThread(threadID, func(t *models.Thread) {
		if a == models.AudienceAdmin {
			t.UnreadAdmin = 0
		} else {
			t.UnreadUser = 0
		}
	})
}

func (s *MemoryStore) SetThreadStatus(ctx context.Context, threadID string, status models.ThreadStatus, at time.Time) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	if status == models.ThreadOpen && t.Status != models.ThreadOpen {
		if other := s.openThreadLocked(t.UserID); other != nil {
			return nil, ErrConflict
		}
	}
	t.Status = status
	t.UpdatedAt = at
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) updateThread(threadID string, fn func(t *models.Thread)) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	fn(t)
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return ErrNotFound
	}
	delete(s.threads, threadID)
	delete(s.messages, threadID)
	return nil
}

func (s *MemoryStore) ListThreads(ctx context.Context, filter models.ThreadFilter) ([]models.Thread, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]models.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		if search != "" && !strings.Contains(strings.ToLower(t.LastMessageText), search) {
			continue
		}
		matched = append(matched, *t)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].LastMessageAt, matched[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		default:
			return a.After(*b)
		}
	})

	total := int64(len(matched))
	start := filter.Page.Offset()
	if start >= len(matched) {
		return []models.Thread{}, total, nil
	}
	end := len(matched)
	if filter.Page.Limit > 0 && start+filter.Page.Limit < end {
		end = start + filter.Page.Limit
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) RefreshThreadSummaries(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshSummariesLocked(), nil
}

func (s *MemoryStore) refreshSummariesLocked() int64 {
	var changed int64
	for id, t := range s.threads {
		var latest *memoryMessage
		for _, mm := range s.messages[id] {
			if !mm.msg.VisibleTo(models.AudienceUser) {
				continue
			}
			if latest == nil || newer(mm, latest) {
				latest = mm
			}
		}

		text, at := "", t.LastMessageAt
		if latest != nil {
			text = latest.msg.SummaryText()
			created := latest.msg.CreatedAt
			at = &created
		}
		if text == t.LastMessageText && sameTime(at, t.LastMessageAt) {
			continue
		}
		t.LastMessageText = text
		t.LastMessageAt = at
		changed++
	}
	return changed
}

func (s *MemoryStore) AppendMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[m.ThreadID]; !ok {
		return ErrNotFound
	}
	s.seq++
	s.messages[m.ThreadID] = append(s.messages[m.ThreadID], &memoryMessage{seq: s.seq, msg: *m})
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, threadID string, a models.Audience, page models.Page) ([]models.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := make([]*memoryMessage, 0, len(s.messages[threadID]))
	for _, mm := range s.messages[threadID] {
		if mm.msg.VisibleTo(a) {
			visible = append(visible, mm)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return newer(visible[i], visible[j]) })

	start := page.Offset()
	if start >= len(visible) {
		return []models.Message{}, false, nil
	}
	end := start + page.Limit
	hasMore := end < len(visible)
	if !hasMore {
		end = len(visible)
	}

	out := make([]models.Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, visible[i].msg)
	}
	return out, hasMore, nil
}

func (s *MemoryStore) MarkMessagesRead(ctx context.Context, threadID string, reader models.Audience) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, mm := range s.messages[threadID] {
		if models.AudienceFor(mm.msg.SenderRole) == reader || mm.msg.ReadBy(reader) {
			continue
		}
		if reader == models.AudienceAdmin {
			mm.msg.ReadByAdmin = true
		} else {
			mm.msg.ReadByUser = true
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) HideAgedUserMessages(ctx context.Context, cutoff, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hideAgedLocked(cutoff, now), nil
}

func (s *MemoryStore) ApplyUserRetention(ctx context.Context, cutoff, now time.Time) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hidden := s.hideAgedLocked(cutoff, now)
	return hidden, s.refreshSummariesLocked(), nil
}

func (s *MemoryStore) hideAgedLocked(cutoff, now time.Time) int64 {
	var n int64
	c := cutoff.UnixNano()
	for _, msgs := range s.messages {
		for _, mm := range msgs {
			if !mm.msg.RetentionEligible(c) {
				continue
			}
			at := now
			mm.msg.DeletedForUser = true
			mm.msg.DeletedForUserAt = &at
			n++
		}
	}
	return n
}

func (s *MemoryStore) HideThreadForAdmin(ctx context.Context, threadID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return 0, ErrNotFound
	}
	var n int64
	for _, mm := range s.messages[threadID] {
		if mm.msg.DeletedForAdmin {
			continue
		}
		at := now
		mm.msg.DeletedForAdmin = true
		mm.msg.DeletedForAdminAt = &at
		n++
	}
	return n, nil
}

func (s *MemoryStore) FindUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		// Tokens may name users this process never saw; keep the timestamp.
		u = &models.User{ID: userID}
		s.users[userID] = u
	}
	u.LastSeenAt = &at
	return nil
}

func newer(a, b *memoryMessage) bool {
	if a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
		return a.seq > b.seq
	}
	return a.msg.CreatedAt.After(b.msg.CreatedAt)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
