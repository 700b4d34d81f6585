package handlers

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/hub"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

// Notifier is the entry point for workflows outside the socket layer that
// need to push events to connected recruiters.
type Notifier struct {
	rooms hub.Registry
	log   *zap.SugaredLogger
}

func NewNotifier(rooms hub.Registry, log *zap.SugaredLogger) *Notifier {
	return &Notifier{rooms: rooms, log: log}
}

type newApplicationPayload struct {
	ApplicationID  string `json:"applicationId"`
	JobID          string `json:"jobId"`
	JobTitle       string `json:"jobTitle"`
	ApplicantName  string `json:"applicantName"`
	ApplicantEmail string `json:"applicantEmail"`
}

// NewApplication tells everyone in the company room about a fresh
// application and returns how many local connections got it.
func (n *Notifier) NewApplication(ctx context.Context, evt models.ApplicationCreated) (int, error) {
	if strings.TrimSpace(evt.CompanyID) == "" || strings.TrimSpace(evt.JobID) == "" {
		return 0, apperr.Validation("companyId and jobId are required")
	}
	delivered := n.rooms.Publish(ctx, models.CompanyRoom(evt.CompanyID), EventNewApplication, newApplicationPayload{
		ApplicationID:  evt.ApplicationID,
		JobID:          evt.JobID,
		JobTitle:       evt.JobTitle,
		ApplicantName:  evt.ApplicantName,
		ApplicantEmail: evt.ApplicantEmail,
	})
	n.log.Infow("new application notified", "company", evt.CompanyID, "job", evt.JobID, "delivered", delivered)
	return delivered, nil
}
