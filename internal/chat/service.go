package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/directory"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
	"github.com/mdawoud27/job-search-app-sub000/internal/policy"
	"github.com/mdawoud27/job-search-app-sub000/internal/repository"
)

const (
	maxAppendAttempts   = 3
	defaultEventTimeout = 5 * time.Second
)

// EventPublisher receives a copy of every stored message. Failures are
// logged and never fail the send.
type EventPublisher interface {
	PublishMessageSent(ctx context.Context, evt models.MessageSent) error
}

type Service struct {
	store        repository.ConversationStore
	users        directory.Users
	events       EventPublisher
	eventTimeout time.Duration
	pending      sync.WaitGroup
	locks        *keyLock
	log          *zap.SugaredLogger
}

func NewService(store repository.ConversationStore, users directory.Users, log *zap.SugaredLogger) *Service {
	return &Service{store: store, users: users, eventTimeout: defaultEventTimeout, locks: newKeyLock(), log: log}
}

// WithEvents attaches a publisher for chat.message.sent events. Each
// publish gets its own deadline of timeout, or 5s when timeout is zero.
func (s *Service) WithEvents(p EventPublisher, timeout time.Duration) *Service {
	s.events = p
	if timeout > 0 {
		s.eventTimeout = timeout
	}
	return s
}

// Send stores body as a message from sender to receiverID. The empty
// conversation check and the append happen under the pair lock, and a
// concurrent writer on another instance shows up as ErrConflict, in which
// case the decision is made again against the fresh conversation.
func (s *Service) Send(ctx context.Context, senderID string, role models.Role, receiverID, body string) (*models.Message, error) {
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" || strings.TrimSpace(body) == "" {
		return nil, apperr.Validation("receiverId and body are required")
	}
	if receiverID == senderID {
		return nil, apperr.Validation("cannot send a message to yourself")
	}
	if _, err := s.users.FindUserByID(ctx, receiverID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("receiver not found")
		}
		return nil, err
	}

	msg, convID, err := s.appendLocked(ctx, senderID, role, receiverID, body)
	if err != nil {
		return nil, err
	}
	msg.Sender = s.senderSummary(ctx, senderID)
	s.emit(ctx, convID, receiverID, msg)
	return msg, nil
}

// appendLocked runs the initiation check and the append under the pair lock.
func (s *Service) appendLocked(ctx context.Context, senderID string, role models.Role, receiverID, body string) (*models.Message, string, error) {
	unlock := s.locks.Lock(models.PairKey(senderID, receiverID))
	defer unlock()

	for attempt := 1; ; attempt++ {
		conv, err := s.store.GetOrCreate(ctx, senderID, receiverID)
		if err != nil {
			return nil, "", err
		}
		if !policy.CanInitiate(conv.IsEmpty(), role) {
			return nil, "", apperr.Forbidden("only HR or Admin can start a conversation")
		}
		msg, err := s.store.AppendMessage(ctx, conv, senderID, body)
		if err == nil {
			return msg, conv.ID, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, "", err
		}
		if attempt == maxAppendAttempts {
			return nil, "", apperr.Storage("append message", err)
		}
		s.log.Debugw("append lost race, retrying", "conversation", conv.ID, "attempt", attempt)
	}
}

func (s *Service) senderSummary(ctx context.Context, senderID string) *models.UserSummary {
	u, err := s.users.FindUserByID(ctx, senderID)
	if err != nil {
		s.log.Warnw("sender lookup failed", "sender", senderID, "err", err)
		return &models.UserSummary{ID: senderID}
	}
	return u.Summary()
}

// emit publishes the event in the background with its own deadline. The
// request context is detached so a finished request does not cancel it.
func (s *Service) emit(ctx context.Context, convID, receiverID string, msg *models.Message) {
	if s.events == nil {
		return
	}
	evt := models.MessageSent{
		ConversationID: convID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		ReceiverID:     receiverID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.events.PublishMessageSent(pctx, evt); err != nil {
			s.log.Warnw("publish message sent", "message", evt.MessageID, "err", err)
		}
	}()
}

// Wait blocks until every background event publish has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// History returns one page of the conversation between userID and otherID.
func (s *Service) History(ctx context.Context, userID, otherID string, page repository.Page) ([]models.Message, int64, error) {
	if strings.TrimSpace(otherID) == "" {
		return nil, 0, apperr.Validation("userId is required")
	}
	return s.store.History(ctx, userID, otherID, page)
}

// DeleteForUser removes every conversation userID takes part in.
func (s *Service) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, apperr.Validation("user id is required")
	}
	n, err := s.store.DeleteForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.log.Infow("conversations removed", "user", userID, "count", n)
	return n, nil
}
