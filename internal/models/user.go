package models

import "time"

// UserRole represents the available roles in the advising workflow.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleAdvisor UserRole = "ADVISOR"
	RoleAdmin   UserRole = "ADMIN"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleAdvisor, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	FullName      string    `db:"full_name" json:"full_name"`
	Role          UserRole  `db:"role" json:"role"`
	StudentNumber *string   `db:"student_number" json:"student_number,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *UserRole
	Active   *bool
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
