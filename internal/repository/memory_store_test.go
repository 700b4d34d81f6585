package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

func TestGetOrCreateIsSymmetric(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ab, err := s.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	ba, err := s.GetOrCreate(ctx, "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, []string{"alice", "bob"}, ba.Participants)
	assert.True(t, ab.IsEmpty())
	assert.Equal(t, 1, s.Count())
}

func TestGetOrCreateConcurrentCallersShareOneConversation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const callers = 64
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "hr-1", "cand-1"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := s.GetOrCreate(ctx, a, b)
			assert.NoError(t, err)
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, s.Count())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestAppendMessageValidates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c, err := s.GetOrCreate(ctx, "hr", "cand")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, c, "hr", "   ")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = s.AppendMessage(ctx, c, "mallory", "hi")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	m, err := s.AppendMessage(ctx, c, "hr", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	assert.Equal(t, int64(1), c.MessageCount)
}

func TestAppendMessageDetectsStaleCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.GetOrCreate(ctx, "hr", "cand")
	require.NoError(t, err)
	second, err := s.GetOrCreate(ctx, "cand", "hr")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, first, "hr", "one")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, second, "cand", "two")
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	msgs, total, err := s.History(ctx, "hr", "cand", Page{Limit: 10, Sort: SortAsc})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "one", msgs[0].Body)
}

func TestHistoryPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	c, err := s.GetOrCreate(ctx, "hr", "cand")
	require.NoError(t, err)
	for i := 1; i <= 55; i++ {
		_, err := s.AppendMessage(ctx, c, "hr", fmt.Sprintf("msg-%02d", i))
		require.NoError(t, err)
	}

	msgs, total, err := s.History(ctx, "cand", "hr", Page{Offset: 50, Limit: 10, Sort: SortDesc})
	require.NoError(t, err)
	assert.Equal(t, int64(55), total)
	require.Len(t, msgs, 5)
	assert.Equal(t, "msg-05", msgs[0].Body)
	assert.Equal(t, "msg-01", msgs[4].Body)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].CreatedAt.After(msgs[i].CreatedAt))
	}

	asc, _, err := s.History(ctx, "hr", "cand", Page{Offset: 0, Limit: 3, Sort: SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-01", "msg-02", "msg-03"}, bodies(asc))
}

func TestHistoryWithoutConversation(t *testing.T) {
	msgs, total, err := NewMemoryStore().History(context.Background(), "a", "b", Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestDeleteForUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, peer := range []string{"b", "c"} {
		_, err := s.GetOrCreate(ctx, "a", peer)
		require.NoError(t, err)
	}
	_, err := s.GetOrCreate(ctx, "b", "c")
	require.NoError(t, err)

	n, err := s.DeleteForUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, s.Count())
}

func bodies(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}
