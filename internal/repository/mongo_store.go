package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

const conversationsCollection = "chats"

// MongoStore keeps one document per participant pair with the messages
// embedded in insertion order.
type MongoStore struct {
	coll    *mongo.Collection
	timeout time.Duration
	now     func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		coll:    db.Collection(conversationsCollection),
		timeout: 5 * time.Second,
		// Mongo keeps millisecond precision; truncating here keeps the echo
		// sent to the client identical to what a later read returns.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// EnsureIndexes creates the participants index used by DeleteForUser.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "participants", Value: 1}},
		Options: options.Index().SetName("participants_idx"),
	}
	if _, err := s.coll.Indexes().CreateOne(ctx, ix); err != nil {
		return apperr.Storage("create participants index", err)
	}
	return nil
}

func (s *MongoStore) GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := models.PairKey(userA, userB)
	now := s.now()
	update := bson.M{"$setOnInsert": bson.M{
		"participants":  models.SortedPair(userA, userB),
		"messages":      bson.A{},
		"message_count": 0,
		"created_at":    now,
		"updated_at":    now,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"messages": 0})

	var c models.Conversation
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&c)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced on the same pair; the other one created it.
		err = s.coll.FindOne(ctx, bson.M{"_id": key}, options.FindOne().SetProjection(bson.M{"messages": 0})).Decode(&c)
	}
	if err != nil {
		return nil, apperr.Storage("get or create conversation", err)
	}
	return &c, nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, conv *models.Conversation, senderID, body string) (*models.Message, error) {
	if err := validateAppend(conv, senderID, body); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	m := models.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Body:      body,
		CreatedAt: s.now(),
	}
	filter := bson.M{"_id": conv.ID, "message_count": conv.MessageCount}
	update := bson.M{
		"$push": bson.M{"messages": m},
		"$inc":  bson.M{"message_count": 1},
		"$set":  bson.M{"updated_at": m.CreatedAt},
	}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, apperr.Storage("append message", err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("append to %s: %w", conv.ID, apperr.ErrConflict)
	}

	conv.MessageCount++
	conv.UpdatedAt = m.CreatedAt
	conv.Messages = append(conv.Messages, m)
	return &m, nil
}

func (s *MongoStore) History(ctx context.Context, userA, userB string, page Page) ([]models.Message, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var c models.Conversation
	err := s.coll.FindOne(ctx, bson.M{"_id": models.PairKey(userA, userB)}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []models.Message{}, 0, nil
	}
	if err != nil {
		return nil, 0, apperr.Storage("load history", err)
	}
	out, total := paginate(c.Messages, page)
	return out, total, nil
}

func (s *MongoStore) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.DeleteMany(ctx, bson.M{"participants": userID})
	if err != nil {
		return 0, apperr.Storage("delete conversations", err)
	}
	return res.DeletedCount, nil
}
