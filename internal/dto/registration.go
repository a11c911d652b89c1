package dto

import (
	"time"

	"github.com/noah-isme/crams-api/internal/models"
)

// CourseRef references a catalog course in a submission.
type CourseRef struct {
	CourseID string `json:"course_id" validate:"required"`
}

// SubmitRegistrationRequest is the payload for creating or resubmitting a registration.
type SubmitRegistrationRequest struct {
	Courses []CourseRef `json:"courses" validate:"required,min=1,dive"`
}

// CourseIDs flattens the submitted references in order.
func (r SubmitRegistrationRequest) CourseIDs() []string {
	ids := make([]string, len(r.Courses))
	for i, ref := range r.Courses {
		ids[i] = ref.CourseID
	}
	return ids
}

// DecisionRequest carries an advisor decision for one course or for the whole registration.
type DecisionRequest struct {
	Decision models.Decision `json:"-"`
	Feedback string          `json:"feedback"`
}

// BulkDecisionRequest applies one decision to a subset of courses.
type BulkDecisionRequest struct {
	CourseIDs []string        `json:"course_ids"`
	Action    models.Decision `json:"action"`
	Feedback  string          `json:"feedback"`
}

// ConflictCheckRequest asks whether a candidate selection clashes.
type ConflictCheckRequest struct {
	CourseIDs []string `json:"course_ids"`
}

// SlotConflict lists the courses sharing one identical time slot.
type SlotConflict struct {
	Day       string   `json:"day"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	CourseIDs []string `json:"course_ids"`
}

// ConflictCheckResult is returned by the pre-submission conflict check.
type ConflictCheckResult struct {
	HasConflict bool           `json:"has_conflict"`
	Conflicts   []SlotConflict `json:"conflicts"`
}

// RegistrationFilter narrows the advisor listing.
type RegistrationFilter struct {
	Screened *bool
}

// StudentSummary is the resolved identity of a registration owner.
type StudentSummary struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	FullName      string  `json:"full_name"`
	StudentNumber *string `json:"student_number,omitempty"`
}

// CourseSummary is the resolved display data of a course.
type CourseSummary struct {
	ID         string           `json:"id"`
	Code       string           `json:"code"`
	Name       string           `json:"name"`
	Instructor string           `json:"instructor"`
	Times      models.TimeSlots `json:"times"`
}

// RegistrationEntryView is an entry with its course resolved.
type RegistrationEntryView struct {
	CourseID string             `json:"course_id"`
	Course   *CourseSummary     `json:"course,omitempty"`
	Status   models.EntryStatus `json:"status"`
	Feedback string             `json:"feedback"`
}

// RegistrationView is the fully resolved registration returned to callers.
type RegistrationView struct {
	ID            string                  `json:"id"`
	StudentID     string                  `json:"student_id"`
	Student       *StudentSummary         `json:"student,omitempty"`
	Courses       []RegistrationEntryView `json:"courses"`
	Screened      bool                    `json:"screened"`
	OverallStatus models.OverallStatus    `json:"overall_status"`
	Version       int64                   `json:"version"`
	SubmittedAt   time.Time               `json:"submitted_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}
