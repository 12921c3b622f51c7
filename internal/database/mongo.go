package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vthuan-dev/bufforder-sub001/internal/config"
)

// Collection names shared by the mongo store.
const (
	CollectionUsers    = "users"
	CollectionThreads  = "chatthreads"
	CollectionMessages = "chatmessages"
)

type MongoDatabase struct {
	Client *mongo.Client
	DB     *mongo.Database
	log    zerolog.Logger
}

func NewMongoConnection(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*MongoDatabase, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Database.ConnTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Database.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("unable to create mongo client: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to connect to mongo: %w", err)
	}

	log = log.With().Str("component", "mongo").Logger()
	log.Info().Str("database", cfg.Database.MongoDatabase).Msg("connected to mongo")
	return &MongoDatabase{
		Client: client,
		DB:     client.Database(cfg.Database.MongoDatabase),
		log:    log,
	}, nil
}

func (m *MongoDatabase) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *MongoDatabase) Ping(ctx context.Context) error {
	return m.Client.Ping(ctx, readpref.Primary())
}

// EnsureIndexes is the mongo counterpart of RunMigrations.
func EnsureIndexes(ctx context.Context, m *MongoDatabase) error {
	threadIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("one_open_thread_per_user").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "open"}),
		},
		{Keys: bson.D{{Key: "last_message_at", Value: -1}}},
	}
	messageIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "sender_role", Value: 1}, {Key: "deleted_for_user", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true)},
	}

	for name, models := range map[string][]mongo.IndexModel{
		CollectionThreads:  threadIndexes,
		CollectionMessages: messageIndexes,
		CollectionUsers:    userIndexes,
	} {
		if _, err := m.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}

	m.log.Info().Msg("mongo indexes ensured")
	return nil
}
