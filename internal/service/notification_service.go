package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
	"github.com/noah-isme/crams-api/pkg/jobs"
)

// NotificationJobType tags queued deliveries.
const NotificationJobType = "notification.deliver"

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id, recipientID string) error
}

type notificationDispatcher interface {
	Enqueue(job jobs.Job) (string, error)
}

// NotificationService manages inbox messages and their delivery.
type NotificationService struct {
	store     notificationStore
	users     identityResolver
	queue     notificationDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNotificationService constructs the service. Without a queue deliveries run inline.
func NewNotificationService(store notificationStore, users identityResolver, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, users: users, metrics: metrics, validator: validate, logger: logger}
}

// UseQueue routes deliveries through the background queue.
func (s *NotificationService) UseQueue(queue notificationDispatcher) {
	s.queue = queue
}

// Notify delivers a notification on a best-effort basis. Failures are logged, never returned.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) {
	if n.Type == "" {
		n.Type = models.NotificationTypeGeneral
	}
	if s.queue != nil {
		_, err := s.queue.Enqueue(jobs.Job{Type: NotificationJobType, Payload: n})
		if err == nil {
			return
		}
		s.logger.Warn("notification queue unavailable, delivering inline", zap.String("recipient_id", n.RecipientID), zap.Error(err))
	}
	if err := s.deliver(ctx, n); err != nil {
		s.logger.Error("failed to deliver notification", zap.String("recipient_id", n.RecipientID), zap.Error(err))
	}
}

// Deliver is the queue handler for notification jobs.
func (s *NotificationService) Deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("discarding malformed notification job", zap.String("job_id", job.ID))
		return nil
	}
	return s.deliver(ctx, n)
}

func (s *NotificationService) deliver(ctx context.Context, n models.Notification) error {
	if err := s.store.Create(ctx, &n); err != nil {
		s.metrics.RecordNotification(false)
		return err
	}
	s.metrics.RecordNotification(true)
	return nil
}

// Send broadcasts one message to every listed recipient.
func (s *NotificationService) Send(ctx context.Context, actor *models.Actor, req dto.SendNotificationRequest) (*dto.SendNotificationResult, error) {
	if err := authorize(actor, models.CapNotificationSend); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}

	recipients := normalizeIDs(req.Recipients)
	users, err := s.users.FindByIDs(ctx, recipients)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve recipients")
	}
	known := make(map[string]struct{}, len(users))
	for _, u := range users {
		known[u.ID] = struct{}{}
	}
	var missing []string
	for _, id := range recipients {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown recipients: %s", strings.Join(missing, ", ")))
	}

	sender := actor.UserID
	for _, id := range recipients {
		s.Notify(ctx, models.Notification{
			RecipientID: id,
			SenderID:    &sender,
			Title:       req.Title,
			Message:     req.Message,
			Type:        models.NotificationTypeGeneral,
		})
	}
	return &dto.SendNotificationResult{
		Message: fmt.Sprintf("Notification sent to %d user(s)", len(recipients)),
		Count:   len(recipients),
	}, nil
}

// List returns the caller's most recent notifications.
func (s *NotificationService) List(ctx context.Context, actor *models.Actor) ([]models.Notification, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	items, err := s.store.ListByRecipient(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, actor *models.Actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return mapNotificationError(s.store.MarkRead(ctx, id, actor.UserID), "failed to update notification")
}

// MarkAllRead flags every unread notification of the caller and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.Actor) (int64, error) {
	if err := requireActor(actor); err != nil {
		return 0, err
	}
	count, err := s.store.MarkAllRead(ctx, actor.UserID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notifications")
	}
	return count, nil
}

// Delete removes one of the caller's notifications.
func (s *NotificationService) Delete(ctx context.Context, actor *models.Actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return mapNotificationError(s.store.Delete(ctx, id, actor.UserID), "failed to delete notification")
}

func mapNotificationError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}
