package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

// MemoryStore keeps conversations in process memory. It backs tests and
// the `mongo.uri`-less development mode.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[string]*models.Conversation
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs: make(map[string]*models.Conversation),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, userA, userB string) (*models.Conversation, error) {
	key := models.PairKey(userA, userB)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[key]
	if !ok {
		now := s.now()
		c = &models.Conversation{
			ID:           key,
			Participants: models.SortedPair(userA, userB),
			Messages:     []models.Message{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.convs[key] = c
	}
	return snapshot(c), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, conv *models.Conversation, senderID, body string) (*models.Message, error) {
	if err := validateAppend(conv, senderID, body); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.convs[conv.ID]
	if !ok {
		return nil, apperr.NotFound("conversation not found")
	}
	if stored.MessageCount != conv.MessageCount {
		return nil, fmt.Errorf("append to %s: %w", conv.ID, apperr.ErrConflict)
	}

	m := models.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Body:      body,
		CreatedAt: s.now(),
	}
	stored.Messages = append(stored.Messages, m)
	stored.MessageCount++
	stored.UpdatedAt = m.CreatedAt

	conv.Messages = append(conv.Messages, m)
	conv.MessageCount = stored.MessageCount
	conv.UpdatedAt = stored.UpdatedAt
	return &m, nil
}

func (s *MemoryStore) History(_ context.Context, userA, userB string, page Page) ([]models.Message, int64, error) {
	s.mu.Lock()
	c, ok := s.convs[models.PairKey(userA, userB)]
	var msgs []models.Message
	if ok {
		msgs = append(msgs, c.Messages...)
	}
	s.mu.Unlock()

	if !ok {
		return []models.Message{}, 0, nil
	}
	out, total := paginate(msgs, page)
	return out, total, nil
}

func (s *MemoryStore) DeleteForUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, c := range s.convs {
		if c.HasParticipant(userID) {
			delete(s.convs, key)
			n++
		}
	}
	return n, nil
}

// Count reports how many conversations exist.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

func snapshot(c *models.Conversation) *models.Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.Messages = append([]models.Message(nil), c.Messages...)
	return &cp
}
