package handlers

import (
	"context"
	"encoding/json"

	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

type myApplicationsReply struct {
	Applications []models.Application `json:"applications"`
}

// GetMyApplications only ever reads the caller's own applications.
func (h *Handlers) GetMyApplications(ctx context.Context, c Caller, _ json.RawMessage) (*Reply, error) {
	apps, err := h.dir.FindApplicationsByUser(ctx, c.UserID())
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []models.Application{}
	}
	return &Reply{Event: EventMyApplications, Payload: myApplicationsReply{Applications: apps}}, nil
}
