package service

import (
	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
)

// CourseCatalog resolves course identifiers to catalog entries.
type CourseCatalog interface {
	Lookup(courseID string) (models.Course, bool)
}

// CatalogMap is an in-memory CourseCatalog keyed by course ID.
type CatalogMap map[string]models.Course

// NewCatalogMap indexes courses by ID.
func NewCatalogMap(courses []models.Course) CatalogMap {
	m := make(CatalogMap, len(courses))
	for _, course := range courses {
		m[course.ID] = course
	}
	return m
}

// Lookup implements CourseCatalog.
func (m CatalogMap) Lookup(courseID string) (models.Course, bool) {
	course, ok := m[courseID]
	return course, ok
}

// HasScheduleConflict flattens the slots of the selected courses in order and reports whether
// any two slots are literally identical in day, start and end. Overlapping but unequal
// intervals do not conflict. Unknown IDs contribute no slots.
func HasScheduleConflict(courseIDs []string, catalog CourseCatalog) bool {
	seen := make(map[models.TimeSlot]struct{})
	for _, id := range courseIDs {
		course, ok := catalog.Lookup(id)
		if !ok {
			continue
		}
		for _, slot := range course.Times {
			if _, dup := seen[slot]; dup {
				return true
			}
			seen[slot] = struct{}{}
		}
	}
	return false
}

// FindScheduleConflicts groups identical slots and returns those shared by two or more
// flattened occurrences, in first-seen order.
func FindScheduleConflicts(courseIDs []string, catalog CourseCatalog) []dto.SlotConflict {
	type group struct {
		occurrences int
		courseIDs   []string
	}
	groups := make(map[models.TimeSlot]*group)
	var order []models.TimeSlot
	for _, id := range courseIDs {
		course, ok := catalog.Lookup(id)
		if !ok {
			continue
		}
		for _, slot := range course.Times {
			g, exists := groups[slot]
			if !exists {
				g = &group{}
				groups[slot] = g
				order = append(order, slot)
			}
			g.occurrences++
			if !containsString(g.courseIDs, id) {
				g.courseIDs = append(g.courseIDs, id)
			}
		}
	}

	conflicts := make([]dto.SlotConflict, 0)
	for _, slot := range order {
		g := groups[slot]
		if g.occurrences < 2 {
			continue
		}
		conflicts = append(conflicts, dto.SlotConflict{Day: slot.Day, Start: slot.Start, End: slot.End, CourseIDs: g.courseIDs})
	}
	return conflicts
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
