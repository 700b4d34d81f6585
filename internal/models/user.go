package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "User"
	RoleHR    Role = "HR"
	RoleAdmin Role = "Admin"
)

// ParseRole normalizes a role claim. Anything unrecognized is a plain User.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hr":
		return RoleHR
	case "admin":
		return RoleAdmin
	default:
		return RoleUser
	}
}

type User struct {
	ID        string `bson:"_id" json:"id"`
	FirstName string `bson:"firstName" json:"firstName"`
	LastName  string `bson:"lastName" json:"lastName"`
	Email     string `bson:"email" json:"email"`
	Role      Role   `bson:"role" json:"role"`
	Avatar    string `bson:"profilePic,omitempty" json:"avatar,omitempty"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Name: u.FullName(), Avatar: u.Avatar}
}

type UserSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Job struct {
	ID        string    `bson:"_id" json:"id"`
	Title     string    `bson:"jobTitle" json:"jobTitle"`
	CompanyID string    `bson:"companyId" json:"companyId"`
	Location  string    `bson:"jobLocation,omitempty" json:"jobLocation,omitempty"`
	Closed    bool      `bson:"closed" json:"closed"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type Applicant struct {
	ApplicationID string    `json:"applicationId"`
	UserID        string    `json:"userId"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	CVURL         string    `json:"cvUrl,omitempty"`
	Status        string    `json:"status"`
	AppliedAt     time.Time `json:"appliedAt"`
}

type JobWithApplicants struct {
	Job        Job         `json:"job"`
	Applicants []Applicant `json:"applicants"`
	Total      int64       `json:"total"`
}

type Application struct {
	ID        string    `bson:"_id" json:"id"`
	JobID     string    `bson:"jobId" json:"jobId"`
	UserID    string    `bson:"userId" json:"userId"`
	CVURL     string    `bson:"userCV,omitempty" json:"cvUrl,omitempty"`
	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	JobTitle  string    `bson:"-" json:"jobTitle,omitempty"`
}

// ApplicationCreated is what the application workflow hands over when a
// candidate applies through the regular HTTP path.
type ApplicationCreated struct {
	ApplicationID  string `json:"applicationId"`
	JobID          string `json:"jobId"`
	JobTitle       string `json:"jobTitle"`
	CompanyID      string `json:"companyId"`
	ApplicantName  string `json:"applicantName"`
	ApplicantEmail string `json:"applicantEmail"`
}
