// Package directory is the read side of the platform's user, job, company
// and application records, which are owned by other services.
package directory

import (
	"context"

	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

type Users interface {
	// FindUserByID returns apperr.ErrNotFound when the user does not exist.
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

type Jobs interface {
	FindJobByID(ctx context.Context, id string) (*models.Job, error)
	FindJobWithApplicants(ctx context.Context, id string, skip, limit int, sort int) (*models.JobWithApplicants, error)
	FindCompanyJobs(ctx context.Context, companyID string) ([]models.Job, error)
}

type Companies interface {
	// CanManage is true for the company owner and its designated HRs.
	CanManage(ctx context.Context, companyID, userID string) (bool, error)
}

type Applications interface {
	FindApplicationsByUser(ctx context.Context, userID string) ([]models.Application, error)
}

type Directory interface {
	Users
	Jobs
	Companies
	Applications
}
