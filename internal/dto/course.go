package dto

import "github.com/noah-isme/crams-api/internal/models"

// UpsertCourseRequest is the payload for creating or replacing a catalog course.
type UpsertCourseRequest struct {
	Code          string            `json:"code" validate:"required,max=32"`
	Name          string            `json:"name" validate:"required,max=255"`
	Instructor    string            `json:"instructor" validate:"max=255"`
	Limit         int               `json:"limit" validate:"gte=0"`
	Enrolled      int               `json:"enrolled" validate:"gte=0"`
	Prerequisites []string          `json:"prerequisites"`
	Times         []models.TimeSlot `json:"times" validate:"dive"`
}
