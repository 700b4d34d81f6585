package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
	Message    string `json:"message"`
}

// SendMessage stores the message, pushes it to the receiver's room and
// echoes the stored copy back to the sender.
func (h *Handlers) SendMessage(ctx context.Context, c Caller, payload json.RawMessage) (*Reply, error) {
	var req sendMessageRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	body := req.Body
	if body == "" {
		body = req.Message
	}
	receiverID := strings.TrimSpace(req.ReceiverID)

	msg, err := h.chat.Send(ctx, c.UserID(), c.Role(), receiverID, body)
	if err != nil {
		return nil, err
	}
	h.rooms.Publish(ctx, models.UserRoom(receiverID), EventReceiveMessage, msg)
	return &Reply{Event: EventMessageSent, Payload: msg}, nil
}

type typingRequest struct {
	ReceiverID string `json:"receiverId"`
}

type typingPayload struct {
	SenderID string `json:"senderId"`
}

func (h *Handlers) Typing(ctx context.Context, c Caller, payload json.RawMessage) (*Reply, error) {
	return h.typing(ctx, c, payload, EventUserTyping)
}

func (h *Handlers) StopTyping(ctx context.Context, c Caller, payload json.RawMessage) (*Reply, error) {
	return h.typing(ctx, c, payload, EventUserStoppedTyping)
}

func (h *Handlers) typing(ctx context.Context, c Caller, payload json.RawMessage, event string) (*Reply, error) {
	var req typingRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	receiverID := strings.TrimSpace(req.ReceiverID)
	if receiverID == "" {
		return nil, apperr.Validation("receiverId is required")
	}
	h.rooms.Publish(ctx, models.UserRoom(receiverID), event, typingPayload{SenderID: c.UserID()})
	return nil, nil
}

type historyRequest struct {
	UserID string `json:"userId"`
	pageArgs
}

type historyReply struct {
	UserID   string           `json:"userId"`
	Messages []models.Message `json:"messages"`
	Total    int64            `json:"total"`
}

func (h *Handlers) GetHistory(ctx context.Context, c Caller, payload json.RawMessage) (*Reply, error) {
	var req historyRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	msgs, total, err := h.chat.History(ctx, c.UserID(), req.UserID, req.history())
	if err != nil {
		return nil, err
	}
	return &Reply{Event: EventChatHistory, Payload: historyReply{UserID: req.UserID, Messages: msgs, Total: total}}, nil
}
