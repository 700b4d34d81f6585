package models

import (
	"strings"
	"time"
)

type Message struct {
	ID        string       `bson:"id" json:"id"`
	SenderID  string       `bson:"sender_id" json:"senderId"`
	Body      string       `bson:"body" json:"message"`
	CreatedAt time.Time    `bson:"created_at" json:"createdAt"`
	Sender    *UserSummary `bson:"-" json:"sender,omitempty"`
}

// Conversation is the two-party thread. ID is the pair key, so the same
// document is found whichever participant looks it up.
type Conversation struct {
	ID           string    `bson:"_id" json:"id"`
	Participants []string  `bson:"participants" json:"participants"`
	CompanyID    string    `bson:"company_id,omitempty" json:"companyId,omitempty"`
	Messages     []Message `bson:"messages" json:"messages,omitempty"`
	MessageCount int64     `bson:"message_count" json:"messageCount"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}

func (c *Conversation) IsEmpty() bool { return c.MessageCount == 0 }

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

var pairKeyEscaper = strings.NewReplacer(`\`, `\\`, ":", `\:`)

// PairKey returns the order-independent key of two participants. Ids are
// escaped so that no two distinct pairs share a key even when an id
// contains the separator.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return pairKeyEscaper.Replace(a) + ":" + pairKeyEscaper.Replace(b)
}

// SortedPair returns both ids in the order used by PairKey.
func SortedPair(a, b string) []string {
	if b < a {
		a, b = b, a
	}
	return []string{a, b}
}

const (
	userRoomPrefix    = "user:"
	companyRoomPrefix = "company:"
)

func UserRoom(userID string) string { return userRoomPrefix + userID }

func CompanyRoom(companyID string) string { return companyRoomPrefix + companyID }

func IsCompanyRoom(room string) bool { return strings.HasPrefix(room, companyRoomPrefix) }

// MessageSent is the domain event emitted after a message is stored.
type MessageSent struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Body           string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
}
