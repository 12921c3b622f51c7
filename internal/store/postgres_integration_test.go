//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vthuan-dev/bufforder-sub001/internal/database"
)

// Run with: DATABASE_URL=postgres://... go test -tags integration ./internal/store/
func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.Open(ctx, dsn, 10*time.Second, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, database.RunMigrations(ctx, db))

	testStoreContract(t, NewPostgresStore(db))
}

func TestPostgresMalformedIDsAreNotFound(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.Open(ctx, dsn, 10*time.Second, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	s := NewPostgresStore(db)

	_, err = s.GetThread(ctx, "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteThread(ctx, "not-a-uuid"), ErrNotFound)
}
