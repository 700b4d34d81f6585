// Package policy holds the authorization rules of the messaging core. Every
// function is pure so callers must pass in whatever state they looked up.
package policy

import "github.com/mdawoud27/job-search-app-sub000/internal/models"

// IsRecruiter reports whether the role may act on behalf of a company.
func IsRecruiter(role models.Role) bool {
	return role == models.RoleHR || role == models.RoleAdmin
}

// CanInitiate decides whether a message may be appended. An empty
// conversation can only be opened by a recruiter; afterwards anyone in it
// may reply. Evaluate against the current count on every send.
func CanInitiate(conversationIsEmpty bool, senderRole models.Role) bool {
	if !conversationIsEmpty {
		return true
	}
	return IsRecruiter(senderRole)
}

func CanJoinCompanyRoom(role models.Role) bool {
	return IsRecruiter(role)
}

// CanViewJobApplicants needs both a recruiter role and manage rights on the
// company owning the job. The global role alone is not enough.
func CanViewJobApplicants(role models.Role, canManageCompany bool) bool {
	return IsRecruiter(role) && canManageCompany
}

func CanViewCompanyJobs(role models.Role, canManageCompany bool) bool {
	return IsRecruiter(role) && canManageCompany
}
