package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// TimeSlot is a weekly meeting of a course, kept as the literal strings entered in the catalog.
type TimeSlot struct {
	Day   string `json:"day" validate:"required"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// TimeSlots is stored as a JSONB array.
type TimeSlots []TimeSlot

// Value implements driver.Valuer.
func (t TimeSlots) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner.
func (t *TimeSlots) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = TimeSlots{}
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported time slots source %T", src)
	}
}

// Course represents a course offered in the catalog.
type Course struct {
	ID            string         `db:"id" json:"id"`
	Code          string         `db:"code" json:"code"`
	Name          string         `db:"name" json:"name"`
	Instructor    string         `db:"instructor" json:"instructor"`
	Limit         int            `db:"seat_limit" json:"limit"`
	Enrolled      int            `db:"enrolled" json:"enrolled"`
	Prerequisites pq.StringArray `db:"prerequisites" json:"prerequisites"`
	Times         TimeSlots      `db:"times" json:"times"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures supported filters for listing courses.
type CourseFilter struct {
	Search   string
	Page     int
	PageSize int
}
