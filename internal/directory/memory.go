package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

type company struct {
	owner string
	hrs   map[string]struct{}
}

// Memory is a Directory held in maps, used in tests and local development.
type Memory struct {
	mu           sync.RWMutex
	users        map[string]models.User
	jobs         map[string]models.Job
	companies    map[string]company
	applications []models.Application
}

func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]models.User),
		jobs:      make(map[string]models.Job),
		companies: make(map[string]company),
	}
}

func (m *Memory) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) AddCompany(id, owner string, hrs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := company{owner: owner, hrs: make(map[string]struct{})}
	for _, hr := range hrs {
		c.hrs[hr] = struct{}{}
	}
	m.companies[id] = c
}

func (m *Memory) AddJob(j models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
}

func (m *Memory) AddApplication(a models.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications = append(m.applications, a)
}

func (m *Memory) FindUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &u, nil
}

func (m *Memory) FindJobByID(_ context.Context, id string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, apperr.NotFound("job not found")
	}
	return &j, nil
}

func (m *Memory) FindJobWithApplicants(ctx context.Context, id string, skip, limit int, order int) (*models.JobWithApplicants, error) {
	job, err := m.FindJobByID(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var apps []models.Application
	for _, a := range m.applications {
		if a.JobID == id {
			apps = append(apps, a)
		}
	}
	users := make(map[string]models.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	m.mu.RUnlock()

	sort.SliceStable(apps, func(i, j int) bool {
		if order < 0 {
			return apps[i].CreatedAt.After(apps[j].CreatedAt)
		}
		return apps[i].CreatedAt.Before(apps[j].CreatedAt)
	})
	total := int64(len(apps))
	apps = window(apps, skip, limit)

	out := &models.JobWithApplicants{Job: *job, Applicants: make([]models.Applicant, 0, len(apps)), Total: total}
	for _, a := range apps {
		u := users[a.UserID]
		out.Applicants = append(out.Applicants, models.Applicant{
			ApplicationID: a.ID,
			UserID:        a.UserID,
			Name:          u.FullName(),
			Email:         u.Email,
			CVURL:         a.CVURL,
			Status:        a.Status,
			AppliedAt:     a.CreatedAt,
		})
	}
	return out, nil
}

func (m *Memory) FindCompanyJobs(_ context.Context, companyID string) ([]models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Job{}
	for _, j := range m.jobs {
		if j.CompanyID == companyID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CanManage(_ context.Context, companyID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.companies[companyID]
	if !ok {
		return false, nil
	}
	if c.owner == userID {
		return true, nil
	}
	_, hr := c.hrs[userID]
	return hr, nil
}

func (m *Memory) FindApplicationsByUser(_ context.Context, userID string) ([]models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Application{}
	for _, a := range m.applications {
		if a.UserID == userID {
			a.JobTitle = m.jobs[a.JobID].Title
			out = append(out, a)
		}
	}
	return out, nil
}

func window[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return items[skip:end]
}
