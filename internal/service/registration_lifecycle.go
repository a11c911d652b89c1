package service

import (
	"time"

	"github.com/noah-isme/crams-api/internal/models"
)

// DefaultRejectFeedback is written when an advisor rejects a course without comment.
const DefaultRejectFeedback = "Course rejected by advisor"

// newRegistration builds a fresh aggregate with every entry pending.
func newRegistration(studentID string, courseIDs []string, now time.Time) *models.Registration {
	return &models.Registration{
		StudentID:   studentID,
		Courses:     pendingEntries(courseIDs),
		Version:     1,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// resubmit replaces every entry and resets the review state.
func resubmit(reg *models.Registration, courseIDs []string, now time.Time) {
	reg.Courses = pendingEntries(courseIDs)
	reg.UpdatedAt = now
}

func pendingEntries(courseIDs []string) []models.CourseEntry {
	entries := make([]models.CourseEntry, len(courseIDs))
	for i, id := range courseIDs {
		entries[i] = models.CourseEntry{CourseID: id, Status: models.EntryStatusPending, Feedback: ""}
	}
	return entries
}

// decisionFeedback returns the supplied feedback or the default for the decision.
func decisionFeedback(decision models.Decision, feedback string) string {
	if feedback != "" {
		return feedback
	}
	if decision == models.DecisionReject {
		return DefaultRejectFeedback
	}
	return ""
}

// decideCourse applies the decision to one entry. It reports false when the course is not part of the registration.
func decideCourse(reg *models.Registration, courseID string, decision models.Decision, feedback string) bool {
	entry := reg.Entry(courseID)
	if entry == nil {
		return false
	}
	entry.Status = decision.Status()
	entry.Feedback = decisionFeedback(decision, feedback)
	return true
}

// decideBulk applies the decision to every entry listed in courseIDs and returns how many entries changed.
func decideBulk(reg *models.Registration, courseIDs []string, decision models.Decision, feedback string) int {
	selected := make(map[string]struct{}, len(courseIDs))
	for _, id := range courseIDs {
		selected[id] = struct{}{}
	}
	text := decisionFeedback(decision, feedback)
	touched := 0
	for i := range reg.Courses {
		if _, ok := selected[reg.Courses[i].CourseID]; !ok {
			continue
		}
		reg.Courses[i].Status = decision.Status()
		reg.Courses[i].Feedback = text
		touched++
	}
	return touched
}

// decideAll applies the decision to every entry. Reject overwrites feedback with the supplied
// text (empty by default); approve keeps whatever feedback each entry already carries.
func decideAll(reg *models.Registration, decision models.Decision, feedback string) int {
	for i := range reg.Courses {
		reg.Courses[i].Status = decision.Status()
		if decision == models.DecisionReject {
			reg.Courses[i].Feedback = feedback
		}
	}
	return len(reg.Courses)
}

// normalizeIDs drops blank IDs and collapses duplicates to their first occurrence.
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
