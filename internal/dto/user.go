package dto

import "github.com/noah-isme/crams-api/internal/models"

// CreateUserRequest is the admin payload for provisioning an account.
type CreateUserRequest struct {
	Email         string          `json:"email" validate:"required,email"`
	Password      string          `json:"password" validate:"required,min=6"`
	FullName      string          `json:"full_name" validate:"required"`
	Role          models.UserRole `json:"role" validate:"required,oneof=STUDENT ADVISOR ADMIN"`
	StudentNumber string          `json:"student_number"`
}

// RegisterStudentRequest is the public sign-up payload. The role is always STUDENT.
type RegisterStudentRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=6"`
	FullName      string `json:"full_name" validate:"required"`
	StudentNumber string `json:"student_number" validate:"required"`
	IP            string `json:"-"`
	UserAgent     string `json:"-"`
}

// DirectoryEntry is the reduced user projection advisors use to address students and colleagues.
type DirectoryEntry struct {
	ID            string          `json:"id"`
	FullName      string          `json:"full_name"`
	Email         string          `json:"email"`
	Role          models.UserRole `json:"role"`
	StudentNumber string          `json:"student_number,omitempty"`
}
