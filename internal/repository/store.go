package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

// ConversationStore persists two-party conversations and their messages.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error)
	// AppendMessage stores a message on conv. conv.MessageCount must be the
	// count the caller based its decision on; if another writer got there
	// first the call fails with apperr.ErrConflict and nothing is stored.
	AppendMessage(ctx context.Context, conv *models.Conversation, senderID, body string) (*models.Message, error)
	History(ctx context.Context, userA, userB string, page Page) ([]models.Message, int64, error)
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}

type SortDirection int

const (
	SortAsc  SortDirection = 1
	SortDesc SortDirection = -1
)

// ParseSort accepts "asc"/"1" and "desc"/"-1". Anything else means newest first.
func ParseSort(s string) SortDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "1", "ascending":
		return SortAsc
	default:
		return SortDesc
	}
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type Page struct {
	Offset int
	Limit  int
	Sort   SortDirection
}

func (p Page) normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Sort != SortAsc {
		p.Sort = SortDesc
	}
	return p
}

// paginate orders messages by creation time, keeping insertion order for
// equal timestamps, and cuts out the requested window.
func paginate(msgs []models.Message, page Page) ([]models.Message, int64) {
	page = page.normalize()
	total := int64(len(msgs))

	ordered := make([]models.Message, len(msgs))
	copy(ordered, msgs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	if page.Sort == SortDesc {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}

	if page.Offset >= len(ordered) {
		return []models.Message{}, total
	}
	end := page.Offset + page.Limit
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[page.Offset:end], total
}

func validateAppend(conv *models.Conversation, senderID, body string) error {
	if conv == nil || conv.ID == "" {
		return apperr.Validation("conversation is required")
	}
	if strings.TrimSpace(body) == "" {
		return apperr.Validation("message body must not be empty")
	}
	if !conv.HasParticipant(senderID) {
		return apperr.Forbidden("sender is not part of this conversation")
	}
	return nil
}
