//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vthuan-dev/bufforder-sub001/internal/config"
	"github.com/vthuan-dev/bufforder-sub001/internal/database"
)

// Run with: MONGO_URI=mongodb://... go test -tags integration ./internal/store/
func TestMongoStoreContract(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	cfg := config.New()
	cfg.Database.MongoURI = uri
	cfg.Database.MongoDatabase = "bufforder_contract"
	cfg.Database.ConnTimeout = 10 * time.Second

	ctx := context.Background()
	db, err := database.NewMongoConnection(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.DB.Drop(context.Background())
		_ = db.Close(context.Background())
	})
	require.NoError(t, database.EnsureIndexes(ctx, db))

	testStoreContract(t, NewMongoStore(db))
}
