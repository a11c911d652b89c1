package models

import "time"

// EntryStatus is the review state of a single course within a registration.
type EntryStatus string

const (
	EntryStatusPending    EntryStatus = "pending"
	EntryStatusApproved   EntryStatus = "approved"
	EntryStatusRejected   EntryStatus = "rejected"
	EntryStatusWaitlisted EntryStatus = "waitlisted"
)

// Valid reports whether the status is one of the four stored states.
func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusPending, EntryStatusApproved, EntryStatusRejected, EntryStatusWaitlisted:
		return true
	default:
		return false
	}
}

// OverallStatus summarises the entry statuses of a registration. It is never persisted.
type OverallStatus string

const (
	OverallStatusRejectedInfluenced OverallStatus = "rejected-influenced"
	OverallStatusApproved           OverallStatus = "approved"
	OverallStatusPending            OverallStatus = "pending"
	OverallStatusWaitlisted         OverallStatus = "waitlisted"
)

// Decision is an advisor verdict applied to one or more entries.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether the decision is approve or reject.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Status maps the decision onto the entry status it produces.
func (d Decision) Status() EntryStatus {
	if d == DecisionApprove {
		return EntryStatusApproved
	}
	return EntryStatusRejected
}

// CourseEntry is one (course, status, feedback) tuple of a registration.
type CourseEntry struct {
	RegistrationID string      `db:"registration_id" json:"-"`
	Position       int         `db:"position" json:"-"`
	CourseID       string      `db:"course_id" json:"course_id"`
	Status         EntryStatus `db:"status" json:"status"`
	Feedback       string      `db:"feedback" json:"feedback"`
}

// Registration is the single aggregate holding a student's course selection and its review state.
type Registration struct {
	ID          string        `db:"id" json:"id"`
	StudentID   string        `db:"student_id" json:"student_id"`
	Courses     []CourseEntry `db:"-" json:"courses"`
	Version     int64         `db:"version" json:"version"`
	SubmittedAt time.Time     `db:"submitted_at" json:"submitted_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Entry returns a pointer to the entry for courseID, or nil.
func (r *Registration) Entry(courseID string) *CourseEntry {
	for i := range r.Courses {
		if r.Courses[i].CourseID == courseID {
			return &r.Courses[i]
		}
	}
	return nil
}

// CourseIDs lists the course identifiers in entry order.
func (r *Registration) CourseIDs() []string {
	ids := make([]string, len(r.Courses))
	for i, entry := range r.Courses {
		ids[i] = entry.CourseID
	}
	return ids
}

// Screened reports whether every entry has left the pending state.
func (r *Registration) Screened() bool {
	for _, entry := range r.Courses {
		if entry.Status == EntryStatusPending {
			return false
		}
	}
	return true
}

// OverallStatus derives the summary label by precedence: rejected, all approved, pending, waitlisted.
func (r *Registration) OverallStatus() OverallStatus {
	var rejected, pending, waitlisted bool
	allApproved := true
	for _, entry := range r.Courses {
		switch entry.Status {
		case EntryStatusRejected:
			rejected = true
		case EntryStatusPending:
			pending = true
		case EntryStatusWaitlisted:
			waitlisted = true
		}
		if entry.Status != EntryStatusApproved {
			allApproved = false
		}
	}
	switch {
	case rejected:
		return OverallStatusRejectedInfluenced
	case allApproved && len(r.Courses) > 0:
		return OverallStatusApproved
	case pending:
		return OverallStatusPending
	case waitlisted:
		return OverallStatusWaitlisted
	default:
		// Zero entries; submission never stores such a registration.
		return OverallStatusPending
	}
}
