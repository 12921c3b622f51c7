// Package chat implements the support conversation flows shared by the REST
// handlers and the realtime gateway.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vthuan-dev/bufforder-sub001/internal/auth"
	"github.com/vthuan-dev/bufforder-sub001/internal/metrics"
	"github.com/vthuan-dev/bufforder-sub001/internal/models"
	"github.com/vthuan-dev/bufforder-sub001/internal/store"
)

var (
	ErrEmptyMessage   = errors.New("message must have text or an image")
	ErrThreadRequired = errors.New("threadId is required")
	ErrThreadClosed   = errors.New("thread is closed")
	ErrUnknownSender  = errors.New("unknown sender role")
)

// Transport labels where a message came from.
const (
	TransportREST     = "rest"
	TransportRealtime = "realtime"
)

// Notifier receives chat changes after they are persisted.
type Notifier interface {
	MessageCreated(ctx context.Context, thread *models.Thread, msg *models.Message)
	ThreadDeleted(ctx context.Context, thread *models.Thread)
}

// PresenceReader answers whether an end-user has a live connection.
type PresenceReader interface {
	IsOnline(userID string) bool
}

type Service struct {
	store    store.Store
	notifier Notifier
	presence PresenceReader
	now      func() time.Time
	pageSize int
	maxPage  int
	log      zerolog.Logger
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithPresence(p PresenceReader) Option { return func(s *Service) { s.presence = p } }

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithPageSizes(def, max int) Option {
	return func(s *Service) {
		s.pageSize = def
		s.maxPage = max
	}
}

func NewService(st store.Store, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		notifier: nopNotifier{},
		presence: offline{},
		now:      time.Now,
		pageSize: 50,
		maxPage:  200,
		log:      log.With().Str("component", "chat").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Page turns raw query values into a bounded page.
func (s *Service) Page(number, limit int) models.Page {
	if number < 1 {
		number = 1
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > s.maxPage {
		limit = s.maxPage
	}
	return models.Page{Number: number, Limit: limit}
}

// OpenThread returns the user's open thread, creating it when absent.
func (s *Service) OpenThread(ctx context.Context, userID, ip string) (*models.Thread, error) {
	t, err := s.store.FindOpenThread(ctx, userID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find open thread: %w", err)
	}

	now := s.now()
	t = &models.Thread{
		ID:        uuid.NewString(),
		UserID:    userID,
		IPAddress: ip,
		Status:    models.ThreadOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.CreateThread(ctx, t)
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with a concurrent open; the winner is the thread.
		return s.store.FindOpenThread(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	s.log.Info().Str("thread_id", t.ID).Str("user_id", userID).Msg("thread opened")
	return t, nil
}

// AuthorizeThread loads a thread the caller may act on. Foreign threads look
// the same as missing ones to end-users.
func (s *Service) AuthorizeThread(ctx context.Context, caller auth.Identity, threadID string) (*models.Thread, error) {
	t, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() && t.UserID != caller.ID {
		return nil, store.ErrNotFound
	}
	return t, nil
}

type SendInput struct {
	ThreadID  string
	Text      string
	ImageURL  *string
	Transport string
}

// Send persists a message from caller and notifies live connections once the
// thread summary is updated. An end-user without a thread id writes to their
// open thread.
func (s *Service) Send(ctx context.Context, caller auth.Identity, in SendInput) (*models.Message, *models.Thread, error) {
	if !caller.Role.Valid() {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSender, caller.Role)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" && (in.ImageURL == nil || *in.ImageURL == "") {
		return nil, nil, ErrEmptyMessage
	}

	thread, err := s.resolveSendThread(ctx, caller, in.ThreadID)
	if err != nil {
		return nil, nil, err
	}

	msg := &models.Message{
		ID:          uuid.NewString(),
		ThreadID:    thread.ID,
		SenderRole:  caller.Role,
		SenderID:    caller.ID,
		Text:        text,
		ImageURL:    in.ImageURL,
		ReadByAdmin: caller.IsStaff(),
		ReadByUser:  !caller.IsStaff(),
		CreatedAt:   s.now(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("append message: %w", err)
	}

	updated, err := s.store.RecordMessage(ctx, thread.ID, msg.SummaryText(), msg.CreatedAt, caller.Audience().Other())
	if err != nil {
		return nil, nil, fmt.Errorf("record message on thread: %w", err)
	}

	transport := in.Transport
	if transport == "" {
		transport = TransportREST
	}
	metrics.RecordMessage(string(caller.Role), transport)
	s.notifier.MessageCreated(ctx, updated, msg)
	return msg, updated, nil
}

func (s *Service) resolveSendThread(ctx context.Context, caller auth.Identity, threadID string) (*models.Thread, error) {
	if threadID == "" {
		if caller.IsStaff() {
			return nil, ErrThreadRequired
		}
		return s.OpenThread(ctx, caller.ID, "")
	}

	t, err := s.AuthorizeThread(ctx, caller, threadID)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() && t.Status == models.ThreadClosed {
		return nil, ErrThreadClosed
	}
	return t, nil
}

// ListMessages returns a page of the thread as the caller's audience sees it.
// Reading as the end-user clears the user's unread counter.
func (s *Service) ListMessages(ctx context.Context, caller auth.Identity, threadID string, page models.Page) (*models.MessagePage, error) {
	thread, err := s.AuthorizeThread(ctx, caller, threadID)
	if err != nil {
		return nil, err
	}

	audience := caller.Audience()
	msgs, hasMore, err := s.store.ListMessages(ctx, threadID, audience, page)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	// History is polled often; only write when there is something to clear.
	if audience == models.AudienceUser && thread.Unread(audience) > 0 {
		if _, err := s.store.ResetUnread(ctx, threadID, models.AudienceUser); err != nil {
			s.log.Warn().Err(err).Str("thread_id", threadID).Msg("reset user unread failed")
		}
		if _, err := s.store.MarkMessagesRead(ctx, threadID, models.AudienceUser); err != nil {
			s.log.Warn().Err(err).Str("thread_id", threadID).Msg("mark read by user failed")
		}
	}

	return &models.MessagePage{Messages: msgs, Page: page.Number, Limit: page.Limit, HasMore: hasMore}, nil
}

// MarkReadByStaff zeroes the staff unread counter and flags user messages read.
func (s *Service) MarkReadByStaff(ctx context.Context, threadID string) (*models.Thread, error) {
	t, err := s.store.ResetUnread(ctx, threadID, models.AudienceAdmin)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.MarkMessagesRead(ctx, threadID, models.AudienceAdmin); err != nil {
		return nil, fmt.Errorf("mark read by staff: %w", err)
	}
	return t, nil
}

// DeleteThread removes the thread with its messages and tells connected
// clients.
func (s *Service) DeleteThread(ctx context.Context, threadID string) error {
	t, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteThread(ctx, threadID); err != nil {
		return err
	}
	s.log.Info().Str("thread_id", threadID).Str("user_id", t.UserID).Msg("thread deleted")
	s.notifier.ThreadDeleted(ctx, t)
	return nil
}

func (s *Service) CloseThread(ctx context.Context, threadID string) (*models.Thread, error) {
	return s.store.SetThreadStatus(ctx, threadID, models.ThreadClosed, s.now())
}

// HideHistoryForStaff hides every message of the thread from staff views.
// This is the only way staff-side history is hidden.
func (s *Service) HideHistoryForStaff(ctx context.Context, threadID string) (int64, error) {
	return s.store.HideThreadForAdmin(ctx, threadID, s.now())
}

// ListThreads is the staff inbox, annotated with live presence.
func (s *Service) ListThreads(ctx context.Context, search string, page models.Page) (*models.ThreadList, error) {
	threads, total, err := s.store.ListThreads(ctx, models.ThreadFilter{Search: search, Page: page})
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	out := make([]models.ThreadSummary, 0, len(threads))
	for _, t := range threads {
		out = append(out, models.ThreadSummary{Thread: t, Online: s.presence.IsOnline(t.UserID)})
	}
	return &models.ThreadList{Threads: out, Total: total, Page: page.Number, Limit: page.Limit}, nil
}

func (s *Service) LookupUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, store.ErrNotFound
	}
	return s.store.FindUserByPhone(ctx, phone)
}

type nopNotifier struct{}

func (nopNotifier) MessageCreated(context.Context, *models.Thread, *models.Message) {}
func (nopNotifier) ThreadDeleted(context.Context, *models.Thread)                   {}

type offline struct{}

func (offline) IsOnline(string) bool { return false }
