package models

import "time"

// UserRole is the coarse access level attached to every account. Route
// groups and service guards key off it.
type UserRole string

const (
	// RoleAdmin manages accounts, runs the matcher, and exports data.
	RoleAdmin UserRole = "admin"
	// RoleProfessor reviews candidates and confirms assignments for
	// their own courses.
	RoleProfessor UserRole = "professor"
	// RoleStudent maintains a TA profile and submits preferences.
	RoleStudent UserRole = "student"
)

// User is one row of the users table. UNI is the short university
// identifier; either it or the email works as a login.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	UNI          string     `db:"uni" json:"uni"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter narrows and pages the admin user listing. Nil pointer
// fields mean "any".
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination is the paging block echoed back with every list response.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
