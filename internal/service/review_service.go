package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
)

type reviewRepository interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	Update(ctx context.Context, reg *models.Registration, expectedVersion int64) error
}

// ReviewService applies advisor decisions to registrations.
type ReviewService struct {
	repo     reviewRepository
	resolver *registrationResolver
	audit    auditRecorder
	notifier studentNotifier
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewReviewService constructs the service. notifier may be nil.
func NewReviewService(repo reviewRepository, courses courseLookup, users identityResolver, audit auditRecorder, notifier studentNotifier, metrics *MetricsService, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{
		repo:     repo,
		resolver: &registrationResolver{courses: courses, users: users},
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DecideCourse approves or rejects a single course of a registration.
func (s *ReviewService) DecideCourse(ctx context.Context, actor *models.Actor, registrationID, courseID string, req dto.DecisionRequest) (*dto.RegistrationView, error) {
	if err := authorize(actor, models.CapRegistrationReview); err != nil {
		return nil, err
	}
	if !req.Decision.Valid() {
		return nil, appErrors.ErrInvalidAction
	}
	return s.mutate(ctx, actor, registrationID, "course", req.Decision, func(reg *models.Registration) (int, error) {
		if !decideCourse(reg, courseID, req.Decision, req.Feedback) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "course not found in registration")
		}
		return 1, nil
	})
}

// DecideBulk applies one decision to the listed courses. An empty list changes nothing.
func (s *ReviewService) DecideBulk(ctx context.Context, actor *models.Actor, registrationID string, req dto.BulkDecisionRequest) (*dto.RegistrationView, error) {
	if err := authorize(actor, models.CapRegistrationReview); err != nil {
		return nil, err
	}
	if !req.Action.Valid() {
		return nil, appErrors.ErrInvalidAction
	}
	return s.mutate(ctx, actor, registrationID, "bulk", req.Action, func(reg *models.Registration) (int, error) {
		return decideBulk(reg, req.CourseIDs, req.Action, req.Feedback), nil
	})
}

// DecideAll applies one decision to every course of the registration.
func (s *ReviewService) DecideAll(ctx context.Context, actor *models.Actor, registrationID string, req dto.DecisionRequest) (*dto.RegistrationView, error) {
	if err := authorize(actor, models.CapRegistrationReview); err != nil {
		return nil, err
	}
	if !req.Decision.Valid() {
		return nil, appErrors.ErrInvalidAction
	}
	return s.mutate(ctx, actor, registrationID, "all", req.Decision, func(reg *models.Registration) (int, error) {
		return decideAll(reg, req.Decision, req.Feedback), nil
	})
}

// mutate loads the registration, applies the change, persists it with a version check and then
// runs the side effects. Callers authorize before calling it.
func (s *ReviewService) mutate(ctx context.Context, actor *models.Actor, registrationID, scope string, decision models.Decision, apply func(*models.Registration) (int, error)) (*dto.RegistrationView, error) {
	reg, err := s.repo.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}

	before := entriesSnapshot(reg)
	changed, err := apply(reg)
	if err != nil {
		return nil, err
	}
	if changed == 0 {
		return s.resolver.one(ctx, reg)
	}

	reg.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, reg, reg.Version); err != nil {
		return nil, mapVersionedWriteError(err)
	}

	s.metrics.RecordDecision(scope, decision, changed)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionRegistrationDecision, reg, before)
	s.notifyStudent(ctx, actor, reg, decision, changed)
	return s.resolver.one(ctx, reg)
}

func (s *ReviewService) notifyStudent(ctx context.Context, actor *models.Actor, reg *models.Registration, decision models.Decision, changed int) {
	if s.notifier == nil {
		return
	}
	verb := "approved"
	if decision == models.DecisionReject {
		verb = "rejected"
	}
	noun := "course"
	if changed != 1 {
		noun = "courses"
	}
	sender := actor.UserID
	s.notifier.Notify(ctx, models.Notification{
		RecipientID: reg.StudentID,
		SenderID:    &sender,
		Title:       "Registration reviewed",
		Message:     fmt.Sprintf("Your advisor %s %d %s. Current status: %s.", verb, changed, noun, reg.OverallStatus()),
		Type:        models.NotificationTypeRegistration,
	})
}
