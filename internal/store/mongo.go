package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vthuan-dev/bufforder-sub001/internal/database"
	"github.com/vthuan-dev/bufforder-sub001/internal/models"
)

// MongoStore implements Store on MongoDB. Thread and message ids are uuid
// strings; user ids may be ObjectIDs created by the account service.
type MongoStore struct {
	db       *database.MongoDatabase
	threads  *mongo.Collection
	messages *mongo.Collection
	users    *mongo.Collection
}

func NewMongoStore(db *database.MongoDatabase) *MongoStore {
	return &MongoStore{
		db:       db,
		threads:  db.DB.Collection(database.CollectionThreads),
		messages: db.DB.Collection(database.CollectionMessages),
		users:    db.DB.Collection(database.CollectionUsers),
	}
}

func (s *MongoStore) Ping(ctx context.Context) error  { return s.db.Ping(ctx) }
func (s *MongoStore) Close(ctx context.Context) error { return s.db.Close(ctx) }

func visibilityField(a models.Audience) string {
	if a == models.AudienceAdmin {
		return "deleted_for_admin"
	}
	return "deleted_for_user"
}

func decodeThread(res *mongo.SingleResult) (*models.Thread, error) {
	var t models.Thread
	if err := res.Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *MongoStore) FindOpenThread(ctx context.Context, userID string) (*models.Thread, error) {
	return decodeThread(s.threads.FindOne(ctx, bson.M{"user_id": userID, "status": models.ThreadOpen}))
}

func (s *MongoStore) CreateThread(ctx context.Context, t *models.Thread) error {
	_, err := s.threads.InsertOne(ctx, t)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *MongoStore) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	return decodeThread(s.threads.FindOne(ctx, bson.M{"_id": id}))
}

func (s *MongoStore) updateThread(ctx context.Context, id string, update bson.M) (*models.Thread, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	t, err := decodeThread(s.threads.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts))
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrConflict
	}
	return t, err
}

func (s *MongoStore) RecordMessage(ctx context.Context, threadID, summary string, at time.Time, unreadFor models.Audience) (*models.Thread, error) {
	counter := "unread_user"
	if unreadFor == models.AudienceAdmin {
		counter = "unread_admin"
	}
	// Pipeline update: every expression sees the pre-update document, so a
	// send that commits late bumps the counter without rolling the summary back.
	isNewest := bson.M{"$or": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$last_message_at", nil}}, nil}},
		bson.M{"$lte": bson.A{"$last_message_at", at}},
	}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"last_message_text": bson.M{"$cond": bson.A{isNewest, summary, "$last_message_text"}},
			"last_message_at":   bson.M{"$max": bson.A{"$last_message_at", at}},
			"updated_at":        bson.M{"$max": bson.A{"$updated_at", at}},
			counter:             bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$" + counter, 0}}, 1}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return decodeThread(s.threads.FindOneAndUpdate(ctx, bson.M{"_id": threadID}, update, opts))
}

func (s *MongoStore) ResetUnread(ctx context.Context, threadID string, a models.Audience) (*models.Thread, error) {
	counter := "unread_user"
	if a == models.AudienceAdmin {
		counter = "unread_admin"
	}
	return s.updateThread(ctx, threadID, bson.M{"$set": bson.M{counter: 0}})
}

func (s *MongoStore) SetThreadStatus(ctx context.Context, threadID string, status models.ThreadStatus, at time.Time) (*models.Thread, error) {
	return s.updateThread(ctx, threadID, bson.M{"$set": bson.M{"status": status, "updated_at": at}})
}

func (s *MongoStore) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return err
	}
	if _, err := s.messages.DeleteMany(ctx, bson.M{"thread_id": threadID}); err != nil {
		return fmt.Errorf("delete thread messages: %w", err)
	}
	res, err := s.threads.DeleteOne(ctx, bson.M{"_id": threadID})
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListThreads(ctx context.Context, filter models.ThreadFilter) ([]models.Thread, int64, error) {
	query := bson.M{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query["last_message_text"] = primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
	}

	total, err := s.threads.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count threads: %w", err)
	}

	// Missing last_message_at sorts lowest, so empty threads land last.
	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "created_at", Value: -1}}).
		SetSkip(int64(filter.Page.Offset())).
		SetLimit(int64(filter.Page.Limit))

	cur, err := s.threads.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list threads: %w", err)
	}
	threads := []models.Thread{}
	if err := cur.All(ctx, &threads); err != nil {
		return nil, 0, fmt.Errorf("decode threads: %w", err)
	}
	return threads, total, nil
}

func (s *MongoStore) RefreshThreadSummaries(ctx context.Context) (int64, error) {
	cur, err := s.threads.Find(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("scan threads: %w", err)
	}
	defer cur.Close(ctx)

	latestOpts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var changed int64
	for cur.Next(ctx) {
		var t models.Thread
		if err := cur.Decode(&t); err != nil {
			return changed, fmt.Errorf("decode thread: %w", err)
		}

		text, at := "", t.LastMessageAt
		var latest models.Message
		err := s.messages.FindOne(ctx, bson.M{"thread_id": t.ID, "deleted_for_user": false}, latestOpts).Decode(&latest)
		switch {
		case err == nil:
			text = latest.SummaryText()
			at = &latest.CreatedAt
		case !errors.Is(err, mongo.ErrNoDocuments):
			return changed, fmt.Errorf("latest visible message for %s: %w", t.ID, err)
		}

		if text == t.LastMessageText && sameTime(at, t.LastMessageAt) {
			continue
		}
		set := bson.M{"last_message_text": text}
		if at != nil {
			set["last_message_at"] = *at
		}
		if _, err := s.threads.UpdateByID(ctx, t.ID, bson.M{"$set": set}); err != nil {
			return changed, fmt.Errorf("update summary for %s: %w", t.ID, err)
		}
		changed++
	}
	return changed, cur.Err()
}

func (s *MongoStore) AppendMessage(ctx context.Context, m *models.Message) error {
	if _, err := s.GetThread(ctx, m.ThreadID); err != nil {
		return err
	}
	if _, err := s.messages.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *MongoStore) ListMessages(ctx context.Context, threadID string, a models.Audience, page models.Page) ([]models.Message, bool, error) {
	query := bson.M{"thread_id": threadID, visibilityField(a): bson.M{"$ne": true}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit + 1))

	cur, err := s.messages.Find(ctx, query, opts)
	if err != nil {
		return nil, false, fmt.Errorf("list messages: %w", err)
	}
	newestFirst := []models.Message{}
	if err := cur.All(ctx, &newestFirst); err != nil {
		return nil, false, fmt.Errorf("decode messages: %w", err)
	}
	return chronological(newestFirst, page.Limit)
}

func (s *MongoStore) MarkMessagesRead(ctx context.Context, threadID string, reader models.Audience) (int64, error) {
	field, author := "read_by_admin", models.SenderUser
	if reader == models.AudienceUser {
		field, author = "read_by_user", models.SenderAdmin
	}
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"thread_id": threadID, "sender_role": author, field: false},
		bson.M{"$set": bson.M{field: true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return res.ModifiedCount, nil
}

// ApplyUserRetention runs the two steps back to back. Multi-document
// transactions need a replica set, and a failed refresh is repaired by the
// next sweep because the summary is recomputed from scratch.
func (s *MongoStore) ApplyUserRetention(ctx context.Context, cutoff, now time.Time) (int64, int64, error) {
	hidden, err := s.HideAgedUserMessages(ctx, cutoff, now)
	if err != nil {
		return 0, 0, err
	}
	refreshed, err := s.RefreshThreadSummaries(ctx)
	if err != nil {
		return hidden, 0, err
	}
	return hidden, refreshed, nil
}

func (s *MongoStore) HideAgedUserMessages(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{
			"sender_role":      models.SenderUser,
			"deleted_for_user": bson.M{"$ne": true},
			"created_at":       bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{"deleted_for_user": true, "deleted_for_user_at": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("hide aged user messages: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) HideThreadForAdmin(ctx context.Context, threadID string, now time.Time) (int64, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return 0, err
	}
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"thread_id": threadID, "deleted_for_admin": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"deleted_for_admin": true, "deleted_for_admin_at": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("hide thread for admin: %w", err)
	}
	return res.ModifiedCount, nil
}

// userIDFilter matches both ObjectID and string primary keys.
func userIDFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

func (s *MongoStore) FindUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var doc struct {
		ID         any        `bson:"_id"`
		Name       string     `bson:"name"`
		Phone      string     `bson:"phone"`
		LastSeenAt *time.Time `bson:"last_seen_at,omitempty"`
		CreatedAt  time.Time  `bson:"created_at"`
	}
	err := s.users.FindOne(ctx, bson.M{"phone": phone}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by phone: %w", err)
	}

	u := &models.User{Name: doc.Name, Phone: doc.Phone, LastSeenAt: doc.LastSeenAt, CreatedAt: doc.CreatedAt}
	switch id := doc.ID.(type) {
	case primitive.ObjectID:
		u.ID = id.Hex()
	case string:
		u.ID = id
	default:
		u.ID = fmt.Sprint(id)
	}
	return u, nil
}

func (s *MongoStore) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	if _, err := s.users.UpdateOne(ctx, userIDFilter(userID), bson.M{"$set": bson.M{"last_seen_at": at}}); err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}
