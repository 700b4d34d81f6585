package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
	"github.com/mdawoud27/job-search-app-sub000/internal/policy"
	"github.com/mdawoud27/job-search-app-sub000/internal/repository"
)

type companyRequest struct {
	CompanyID string `json:"companyId"`
}

// JoinCompany subscribes a recruiter to the company room. Anyone else is
// ignored without an error.
func (h *Handlers) JoinCompany(_ context.Context, c Caller, payload json.RawMessage) (*Reply, error) {
	var req companyRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CompanyID) == "" {
		return nil, apperr.Validation("companyId is required")
	}
	if !policy.CanJoinCompanyRoom(c.Role()) {
		h.log.Debugw("join company ignored", "user", c.UserID(), "role", c.Role(), "company", req.CompanyID)
		return nil, nil
	}
	h.rooms.Join(models.CompanyRoom(req.CompanyID), c)
	return nil, nil
}

func (h *Handlers) LeaveCompany(_ context.Context, c Caller, payload json.RawMessage) (*Reply, error) {
	var req companyRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CompanyID) == "" {
		return nil, apperr.Validation("companyId is required")
	}
	h.rooms.Leave(models.CompanyRoom(req.CompanyID), c)
	return nil, nil
}

type jobApplicantsRequest struct {
	JobID string `json:"jobId"`
	pageArgs
}

type jobApplicantsReply struct {
	JobID      string             `json:"jobId"`
	JobTitle   string             `json:"jobTitle"`
	Applicants []models.Applicant `json:"applicants"`
	Total      int64              `json:"total"`
}

func (h *Handlers) GetJobApplicants(ctx context.Context, c Caller, payload json.RawMessage) (*Reply, error) {
	var req jobApplicantsRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.JobID) == "" {
		return nil, apperr.Validation("jobId is required")
	}
	if !policy.IsRecruiter(c.Role()) {
		return nil, apperr.Forbidden("only HR or Admin can view applicants")
	}

	job, err := h.dir.FindJobByID(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	canManage, err := h.dir.CanManage(ctx, job.CompanyID, c.UserID())
	if err != nil {
		return nil, err
	}
	if !policy.CanViewJobApplicants(c.Role(), canManage) {
		return nil, apperr.Forbidden("you are not allowed to view applicants for this job")
	}

	res, err := h.dir.FindJobWithApplicants(ctx, job.ID, req.skip(), req.Limit, int(repository.ParseSort(req.Sort)))
	if err != nil {
		return nil, err
	}
	applicants := res.Applicants
	if applicants == nil {
		applicants = []models.Applicant{}
	}
	return &Reply{Event: EventJobApplicants, Payload: jobApplicantsReply{
		JobID:      job.ID,
		JobTitle:   job.Title,
		Applicants: applicants,
		Total:      res.Total,
	}}, nil
}

type companyJobsReply struct {
	CompanyID string       `json:"companyId"`
	Jobs      []models.Job `json:"jobs"`
}

func (h *Handlers) GetCompanyJobs(ctx context.Context, c Caller, payload json.RawMessage) (*Reply, error) {
	var req companyRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CompanyID) == "" {
		return nil, apperr.Validation("companyId is required")
	}
	if !policy.IsRecruiter(c.Role()) {
		return nil, apperr.Forbidden("only HR or Admin can view company jobs")
	}
	canManage, err := h.dir.CanManage(ctx, req.CompanyID, c.UserID())
	if err != nil {
		return nil, err
	}
	if !policy.CanViewCompanyJobs(c.Role(), canManage) {
		return nil, apperr.Forbidden("you are not allowed to manage this company")
	}

	jobs, err := h.dir.FindCompanyJobs(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	return &Reply{Event: EventCompanyJobs, Payload: companyJobsReply{CompanyID: req.CompanyID, Jobs: jobs}}, nil
}
