package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/crams-api/internal/models"
)

// InboxLimit caps how many notifications are returned for one recipient.
const InboxLimit = 50

// NotificationRepository persists per-user notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Type == "" {
		n.Type = models.NotificationTypeGeneral
	}
	const query = `INSERT INTO notifications (id, recipient_id, sender_id, title, message, type, read, created_at)
        VALUES (:id, :recipient_id, :sender_id, :title, :message, :type, :read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByRecipient returns the most recent notifications of a recipient, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]models.Notification, error) {
	query := fmt.Sprintf(`SELECT id, recipient_id, sender_id, title, message, type, read, created_at FROM notifications
        WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT %d`, InboxLimit)
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, recipientID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// MarkRead flags a notification owned by the recipient as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, recipientID)
	if err != nil {
		if err = lookupError(err); err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead flags every unread notification of the recipient as read and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	const query = `UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND read = FALSE`
	res, err := r.db.ExecContext(ctx, query, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("notification rows affected: %w", err)
	}
	return affected, nil
}

// Delete removes a notification owned by the recipient.
func (r *NotificationRepository) Delete(ctx context.Context, id, recipientID string) error {
	const query = `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, recipientID)
	if err != nil {
		if err = lookupError(err); err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("delete notification: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
