package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

func conversationDoc(id string, count int64, msgs ...bson.D) bson.D {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	arr := bson.A{}
	for _, m := range msgs {
		arr = append(arr, m)
	}
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "participants", Value: bson.A{"cand-1", "hr-1"}},
		{Key: "messages", Value: arr},
		{Key: "message_count", Value: count},
		{Key: "created_at", Value: at},
		{Key: "updated_at", Value: at},
	}
}

func messageDoc(id, sender, body string, at time.Time) bson.D {
	return bson.D{
		{Key: "id", Value: id},
		{Key: "sender_id", Value: sender},
		{Key: "body", Value: body},
		{Key: "created_at", Value: at},
	}
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	key := models.PairKey("hr-1", "cand-1")

	mt.Run("ensure indexes", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, s.EnsureIndexes(context.Background()))

		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 85, Name: "IndexOptionsConflict", Message: "index exists with different options",
		}))
		err := s.EnsureIndexes(context.Background())
		require.Error(mt, err)
		assert.True(mt, errors.Is(err, apperr.ErrStorage))
	})

	mt.Run("get or create upserts", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: conversationDoc(key, 0)},
		))

		c, err := s.GetOrCreate(context.Background(), "hr-1", "cand-1")
		require.NoError(mt, err)
		assert.Equal(mt, key, c.ID)
		assert.Equal(mt, []string{"cand-1", "hr-1"}, c.Participants)
		assert.True(mt, c.IsEmpty())

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "findAndModify", started.CommandName)
	})

	mt.Run("get or create rereads after duplicate key", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		ns := mt.DB.Name() + "." + conversationsCollection
		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mtest.CommandError{
				Code: 11000, Name: "DuplicateKey", Message: "E11000 duplicate key error",
			}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, conversationDoc(key, 3)),
		)

		c, err := s.GetOrCreate(context.Background(), "cand-1", "hr-1")
		require.NoError(mt, err)
		assert.Equal(mt, key, c.ID)
		assert.EqualValues(mt, 3, c.MessageCount)
	})

	mt.Run("append stores and advances count", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		conv := &models.Conversation{ID: key, Participants: []string{"cand-1", "hr-1"}}

		m, err := s.AppendMessage(context.Background(), conv, "hr-1", "Hello")
		require.NoError(mt, err)
		assert.NotEmpty(mt, m.ID)
		assert.Equal(mt, "Hello", m.Body)
		assert.Equal(mt, m.CreatedAt.Truncate(time.Millisecond), m.CreatedAt)
		assert.EqualValues(mt, 1, conv.MessageCount)
		assert.Len(mt, conv.Messages, 1)
	})

	mt.Run("append reports conflict when count moved", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))
		conv := &models.Conversation{ID: key, Participants: []string{"cand-1", "hr-1"}, MessageCount: 2}

		_, err := s.AppendMessage(context.Background(), conv, "cand-1", "hi")
		require.Error(mt, err)
		assert.True(mt, errors.Is(err, apperr.ErrConflict))
		assert.EqualValues(mt, 2, conv.MessageCount)
	})

	mt.Run("append surfaces write errors as storage", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 2, Name: "BadValue", Message: "bad update",
		}))
		conv := &models.Conversation{ID: key, Participants: []string{"cand-1", "hr-1"}}

		_, err := s.AppendMessage(context.Background(), conv, "hr-1", "Hello")
		require.Error(mt, err)
		assert.Equal(mt, "storage", apperr.Kind(err))
	})

	mt.Run("history of unknown pair is empty", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		ns := mt.DB.Name() + "." + conversationsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		msgs, total, err := s.History(context.Background(), "hr-1", "nobody", Page{})
		require.NoError(mt, err)
		assert.Zero(mt, total)
		assert.NotNil(mt, msgs)
		assert.Empty(mt, msgs)
	})

	mt.Run("history pages embedded messages", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		ns := mt.DB.Name() + "." + conversationsCollection
		at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, conversationDoc(key, 3,
			messageDoc("m1", "hr-1", "one", at),
			messageDoc("m2", "cand-1", "two", at.Add(time.Minute)),
			messageDoc("m3", "hr-1", "three", at.Add(2*time.Minute)),
		)))

		msgs, total, err := s.History(context.Background(), "cand-1", "hr-1", Page{Limit: 2, Sort: SortAsc})
		require.NoError(mt, err)
		assert.EqualValues(mt, 3, total)
		require.Len(mt, msgs, 2)
		assert.Equal(mt, "one", msgs[0].Body)
		assert.Equal(mt, "two", msgs[1].Body)
	})

	mt.Run("delete for user", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}))

		n, err := s.DeleteForUser(context.Background(), "cand-1")
		require.NoError(mt, err)
		assert.EqualValues(mt, 2, n)
	})
}
