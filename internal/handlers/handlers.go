// Package handlers implements one function per client event. Handlers never
// touch the socket: they return a reply for the caller or an error, and the
// gateway turns either into a frame.
package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/chat"
	"github.com/mdawoud27/job-search-app-sub000/internal/directory"
	"github.com/mdawoud27/job-search-app-sub000/internal/hub"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
	"github.com/mdawoud27/job-search-app-sub000/internal/repository"
)

// Inbound events.
const (
	EventJoinCompany       = "joinCompany"
	EventLeaveCompany      = "leaveCompany"
	EventSendMessage       = "sendMessage"
	EventTyping            = "typing"
	EventStopTyping        = "stopTyping"
	EventGetJobApplicants  = "getJobApplicants"
	EventGetCompanyJobs    = "getCompanyJobs"
	EventGetMyApplications = "getMyApplications"
	EventGetHistory        = "getHistory"
)

// Outbound events.
const (
	EventReceiveMessage    = "receiveMessage"
	EventMessageSent       = "messageSent"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventJobApplicants     = "jobApplicants"
	EventCompanyJobs       = "companyJobs"
	EventMyApplications    = "myApplications"
	EventChatHistory       = "chatHistory"
	EventNewApplication    = "newApplication"
	EventError             = "error"
)

// Caller is the authenticated connection an event arrived on.
type Caller interface {
	hub.Member
	UserID() string
	Role() models.Role
}

// Reply is sent to the caller only.
type Reply struct {
	Event   string
	Payload any
}

type Handler func(ctx context.Context, c Caller, payload json.RawMessage) (*Reply, error)

type Handlers struct {
	rooms hub.Registry
	chat  *chat.Service
	dir   directory.Directory
	log   *zap.SugaredLogger
}

func New(rooms hub.Registry, chatSvc *chat.Service, dir directory.Directory, log *zap.SugaredLogger) *Handlers {
	return &Handlers{rooms: rooms, chat: chatSvc, dir: dir, log: log}
}

// Table maps inbound event names to their handler.
func (h *Handlers) Table() map[string]Handler {
	return map[string]Handler{
		EventJoinCompany:       h.JoinCompany,
		EventLeaveCompany:      h.LeaveCompany,
		EventSendMessage:       h.SendMessage,
		EventTyping:            h.Typing,
		EventStopTyping:        h.StopTyping,
		EventGetJobApplicants:  h.GetJobApplicants,
		EventGetCompanyJobs:    h.GetCompanyJobs,
		EventGetMyApplications: h.GetMyApplications,
		EventGetHistory:        h.GetHistory,
	}
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return apperr.Validation("malformed payload")
	}
	return nil
}

// pageArgs is the optional paging block shared by list requests. Page is
// 1-based.
type pageArgs struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Sort  string `json:"sort"`
}

func (p pageArgs) skip() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

func (p pageArgs) history() repository.Page {
	return repository.Page{Offset: p.skip(), Limit: p.Limit, Sort: repository.ParseSort(p.Sort)}
}
