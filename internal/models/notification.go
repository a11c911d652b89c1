package models

import "time"

// NotificationType categorises notifications in the inbox.
type NotificationType string

const (
	NotificationTypeGeneral      NotificationType = "general"
	NotificationTypeRegistration NotificationType = "registration"
	NotificationTypeCourse       NotificationType = "course"
	NotificationTypeSystem       NotificationType = "system"
)

// Notification is a message delivered to a single recipient.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	SenderID    *string          `db:"sender_id" json:"sender_id,omitempty"`
	Title       string           `db:"title" json:"title"`
	Message     string           `db:"message" json:"message"`
	Type        NotificationType `db:"type" json:"type"`
	Read        bool             `db:"read" json:"read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
