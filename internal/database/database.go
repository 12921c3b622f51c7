package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/vthuan-dev/bufforder-sub001/internal/config"
)

type Database struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewConnection(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Database, error) {
	db, err := Open(ctx, cfg.GetDatabaseURL(), cfg.Database.ConnTimeout, log)
	if err != nil {
		return nil, err
	}
	db.log.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.DBName).Msg("connected to database")
	return db, nil
}

// Open connects to dsn and pings it within timeout.
func Open(ctx context.Context, dsn string, timeout time.Duration, log zerolog.Logger) (*Database, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &Database{Pool: pool, log: log.With().Str("component", "postgres").Logger()}, nil
}

func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *Database) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// RunMigrations creates the chat schema. Every statement is idempotent so it
// runs on each boot.
func RunMigrations(ctx context.Context, db *Database) error {
	// Users are owned by the auth service; chat only needs phone lookup and
	// last-seen tracking, plus the columns cmd/seed writes.
	createUsersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name VARCHAR(255) NOT NULL,
		phone VARCHAR(32) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL DEFAULT '',
		last_seen_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`

	createThreadsTable := `
	CREATE TABLE IF NOT EXISTS chat_threads (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		last_message_at TIMESTAMP WITH TIME ZONE,
		last_message_text TEXT NOT NULL DEFAULT '',
		unread_admin INTEGER NOT NULL DEFAULT 0,
		unread_user INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed')),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		thread_id UUID NOT NULL REFERENCES chat_threads(id) ON DELETE CASCADE,
		sender_role VARCHAR(16) NOT NULL CHECK (sender_role IN ('user', 'admin')),
		sender_id TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		image_url TEXT,
		read_by_admin BOOLEAN NOT NULL DEFAULT FALSE,
		read_by_user BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_for_user BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_for_user_at TIMESTAMP WITH TIME ZONE,
		deleted_for_admin BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_for_admin_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);`

	// The partial unique index is what keeps a user at one open thread even
	// when two requests race past the lookup.
	createIndexes := `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_threads_one_open ON chat_threads(user_id) WHERE status = 'open';
	CREATE INDEX IF NOT EXISTS idx_chat_threads_last_message_at ON chat_threads(last_message_at DESC NULLS LAST);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_thread_created ON chat_messages(thread_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_retention ON chat_messages(created_at) WHERE sender_role = 'user' AND deleted_for_user = FALSE;`

	migrations := []string{
		createUsersTable,
		createThreadsTable,
		createMessagesTable,
		createIndexes,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	db.log.Info().Int("statements", len(migrations)).Msg("database migrations completed")
	return nil
}

func (db *Database) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return db.Pool.Begin(ctx)
}

func (db *Database) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.Pool.QueryRow(ctx, sql, args...)
}

func (db *Database) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.Pool.Query(ctx, sql, args...)
}

func (db *Database) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return db.Pool.Exec(ctx, sql, args...)
}
