package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vthuan-dev/bufforder-sub001/internal/database"
	"github.com/vthuan-dev/bufforder-sub001/internal/models"
)

const uniqueViolation = "23505"

const threadColumns = `id, user_id, ip_address, last_message_at, last_message_text,
	unread_admin, unread_user, status, created_at, updated_at`

const messageColumns = `id, thread_id, sender_role, sender_id, text, image_url,
	read_by_admin, read_by_user, deleted_for_user, deleted_for_user_at,
	deleted_for_admin, deleted_for_admin_at, created_at`

// PostgresStore implements Store on top of the pgx pool.
type PostgresStore struct {
	db *database.Database
}

func NewPostgresStore(db *database.Database) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *PostgresStore) Close(ctx context.Context) error {
	s.db.Close()
	return nil
}

func scanThread(row pgx.Row) (*models.Thread, error) {
	var t models.Thread
	err := row.Scan(
		&t.ID, &t.UserID, &t.IPAddress, &t.LastMessageAt, &t.LastMessageText,
		&t.UnreadAdmin, &t.UnreadUser, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanMessage(row pgx.Row) (models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID, &m.ThreadID, &m.SenderRole, &m.SenderID, &m.Text, &m.ImageURL,
		&m.ReadByAdmin, &m.ReadByUser, &m.DeletedForUser, &m.DeletedForUserAt,
		&m.DeletedForAdmin, &m.DeletedForAdminAt, &m.CreatedAt,
	)
	return m, err
}

// validID keeps malformed path ids from reaching the uuid columns, where they
// would surface as a syntax error instead of a miss.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// visibilityColumn maps an audience onto its soft-delete flag.
func visibilityColumn(a models.Audience) string {
	if a == models.AudienceAdmin {
		return "deleted_for_admin"
	}
	return "deleted_for_user"
}

func unreadColumn(a models.Audience) string {
	if a == models.AudienceAdmin {
		return "unread_admin"
	}
	return "unread_user"
}

func readColumn(a models.Audience) string {
	if a == models.AudienceAdmin {
		return "read_by_admin"
	}
	return "read_by_user"
}

func (s *PostgresStore) FindOpenThread(ctx context.Context, userID string) (*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM chat_threads WHERE user_id = $1 AND status = 'open' LIMIT 1`
	return scanThread(s.db.QueryRow(ctx, query, userID))
}

func (s *PostgresStore) CreateThread(ctx context.Context, t *models.Thread) error {
	query := `
		INSERT INTO chat_threads (
			id, user_id, ip_address, last_message_at, last_message_text,
			unread_admin, unread_user, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.Exec(ctx, query,
		t.ID, t.UserID, t.IPAddress, t.LastMessageAt, t.LastMessageText,
		t.UnreadAdmin, t.UnreadUser, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `SELECT ` + threadColumns + ` FROM chat_threads WHERE id = $1`
	return scanThread(s.db.QueryRow(ctx, query, id))
}

func (s *PostgresStore) RecordMessage(ctx context.Context, threadID, summary string, at time.Time, unreadFor models.Audience) (*models.Thread, error) {
	if !validID(threadID) {
		return nil, ErrNotFound
	}
	col := unreadColumn(unreadFor)
	query := `
		UPDATE chat_threads
		SET last_message_at = GREATEST(last_message_at, $2),
			last_message_text = CASE
				WHEN last_message_at IS NULL OR last_message_at <= $2 THEN $3
				ELSE last_message_text END,
			` + col + ` = ` + col + ` + 1,
			updated_at = GREATEST(updated_at, $2)
		WHERE id = $1
		RETURNING ` + threadColumns
	return scanThread(s.db.QueryRow(ctx, query, threadID, at, summary))
}

func (s *PostgresStore) ResetUnread(ctx context.Context, threadID string, a models.Audience) (*models.Thread, error) {
	if !validID(threadID) {
		return nil, ErrNotFound
	}
	query := `UPDATE chat_threads SET ` + unreadColumn(a) + ` = 0 WHERE id = $1 RETURNING ` + threadColumns
	return scanThread(s.db.QueryRow(ctx, query, threadID))
}

func (s *PostgresStore) SetThreadStatus(ctx context.Context, threadID string, status models.ThreadStatus, at time.Time) (*models.Thread, error) {
	if !validID(threadID) {
		return nil, ErrNotFound
	}
	query := `UPDATE chat_threads SET status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + threadColumns
	t, err := scanThread(s.db.QueryRow(ctx, query, threadID, status, at))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, ErrConflict
	}
	return t, err
}

func (s *PostgresStore) DeleteThread(ctx context.Context, threadID string) error {
	if !validID(threadID) {
		return ErrNotFound
	}
	// chat_messages rows go with the thread through ON DELETE CASCADE.
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_threads WHERE id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// escapeLike escapes LIKE wildcards so the search is a plain substring match.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *PostgresStore) ListThreads(ctx context.Context, filter models.ThreadFilter) ([]models.Thread, int64, error) {
	where := ""
	args := []any{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		where = ` WHERE last_message_text ILIKE $1`
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM chat_threads`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count threads: %w", err)
	}

	args = append(args, filter.Page.Limit, filter.Page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM chat_threads%s
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $%d OFFSET $%d`, threadColumns, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := []models.Thread{}
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, *t)
	}
	return threads, total, rows.Err()
}

// execer is satisfied by both the pool wrapper and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) RefreshThreadSummaries(ctx context.Context) (int64, error) {
	return refreshThreadSummaries(ctx, s.db)
}

func refreshThreadSummaries(ctx context.Context, db execer) (int64, error) {
	query := `
		UPDATE chat_threads t
		SET last_message_at = COALESCE(v.created_at, t.last_message_at),
			last_message_text = COALESCE(v.summary, '')
		FROM chat_threads src
		LEFT JOIN LATERAL (
			SELECT m.created_at,
				CASE WHEN btrim(m.text) = '' AND COALESCE(m.image_url, '') <> '' THEN $1 ELSE m.text END AS summary
			FROM chat_messages m
			WHERE m.thread_id = src.id AND m.deleted_for_user = FALSE
			ORDER BY m.created_at DESC
			LIMIT 1
		) v ON TRUE
		WHERE t.id = src.id
			AND (t.last_message_text IS DISTINCT FROM COALESCE(v.summary, '')
				OR t.last_message_at IS DISTINCT FROM COALESCE(v.created_at, t.last_message_at))`

	tag, err := db.Exec(ctx, query, models.ImageSentinel)
	if err != nil {
		return 0, fmt.Errorf("refresh thread summaries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m *models.Message) error {
	if !validID(m.ThreadID) {
		return ErrNotFound
	}
	query := `INSERT INTO chat_messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.db.Exec(ctx, query,
		m.ID, m.ThreadID, m.SenderRole, m.SenderID, m.Text, m.ImageURL,
		m.ReadByAdmin, m.ReadByUser, m.DeletedForUser, m.DeletedForUserAt,
		m.DeletedForAdmin, m.DeletedForAdminAt, m.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, threadID string, a models.Audience, page models.Page) ([]models.Message, bool, error) {
	if !validID(threadID) {
		return []models.Message{}, false, nil
	}
	query := `SELECT ` + messageColumns + ` FROM chat_messages
		WHERE thread_id = $1 AND ` + visibilityColumn(a) + ` = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, threadID, page.Limit+1, page.Offset())
	if err != nil {
		return nil, false, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	newestFirst := make([]models.Message, 0, page.Limit+1)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan message: %w", err)
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return chronological(newestFirst, page.Limit)
}

// chronological drops the lookahead row and flips a newest-first page.
func chronological(newestFirst []models.Message, limit int) ([]models.Message, bool, error) {
	hasMore := len(newestFirst) > limit
	if hasMore {
		newestFirst = newestFirst[:limit]
	}
	out := make([]models.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, hasMore, nil
}

func (s *PostgresStore) MarkMessagesRead(ctx context.Context, threadID string, reader models.Audience) (int64, error) {
	if !validID(threadID) {
		return 0, nil
	}
	col := readColumn(reader)
	author := models.SenderUser
	if reader == models.AudienceUser {
		author = models.SenderAdmin
	}
	query := `UPDATE chat_messages SET ` + col + ` = TRUE
		WHERE thread_id = $1 AND sender_role = $2 AND ` + col + ` = FALSE`
	tag, err := s.db.Exec(ctx, query, threadID, author)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) HideAgedUserMessages(ctx context.Context, cutoff, now time.Time) (int64, error) {
	return hideAgedUserMessages(ctx, s.db, cutoff, now)
}

// ApplyUserRetention hides and refreshes in one transaction, so readers never
// see messages hidden behind a summary that still quotes them.
func (s *PostgresStore) ApplyUserRetention(ctx context.Context, cutoff, now time.Time) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin retention tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	hidden, err := hideAgedUserMessages(ctx, tx, cutoff, now)
	if err != nil {
		return 0, 0, err
	}
	refreshed, err := refreshThreadSummaries(ctx, tx)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit retention tx: %w", err)
	}
	return hidden, refreshed, nil
}

func hideAgedUserMessages(ctx context.Context, db execer, cutoff, now time.Time) (int64, error) {
	query := `
		UPDATE chat_messages
		SET deleted_for_user = TRUE, deleted_for_user_at = $2
		WHERE sender_role = 'user' AND deleted_for_user = FALSE AND created_at < $1`
	tag, err := db.Exec(ctx, query, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("hide aged user messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) HideThreadForAdmin(ctx context.Context, threadID string, now time.Time) (int64, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return 0, err
	}
	query := `
		UPDATE chat_messages
		SET deleted_for_admin = TRUE, deleted_for_admin_at = $2
		WHERE thread_id = $1 AND deleted_for_admin = FALSE`
	tag, err := s.db.Exec(ctx, query, threadID, now)
	if err != nil {
		return 0, fmt.Errorf("hide thread for admin: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) FindUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		`SELECT id, name, phone, last_seen_at, created_at FROM users WHERE phone = $1`, phone,
	).Scan(&u.ID, &u.Name, &u.Phone, &u.LastSeenAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by phone: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	if !validID(userID) {
		return nil
	}
	if _, err := s.db.Exec(ctx, `UPDATE users SET last_seen_at = $2 WHERE id = $1`, userID, at); err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}
