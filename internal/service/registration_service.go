package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	"github.com/noah-isme/crams-api/internal/repository"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
)

type registrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindByStudent(ctx context.Context, studentID string) (*models.Registration, error)
	FindByIDAndStudent(ctx context.Context, id, studentID string) (*models.Registration, error)
	ExistsForStudent(ctx context.Context, studentID string) (bool, error)
	List(ctx context.Context) ([]models.Registration, error)
	Create(ctx context.Context, reg *models.Registration) error
	Update(ctx context.Context, reg *models.Registration, expectedVersion int64) error
}

type courseLookup interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Course, error)
}

type identityResolver interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type studentNotifier interface {
	Notify(ctx context.Context, notification models.Notification)
}

// RegistrationService implements submission and retrieval of registrations.
type RegistrationService struct {
	repo      registrationRepository
	courses   courseLookup
	resolver  *registrationResolver
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistrationService constructs the service.
func NewRegistrationService(repo registrationRepository, courses courseLookup, users identityResolver, audit auditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		repo:      repo,
		courses:   courses,
		resolver:  &registrationResolver{courses: courses, users: users},
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the caller's first registration with every course pending.
func (s *RegistrationService) Create(ctx context.Context, actor *models.Actor, req dto.SubmitRegistrationRequest) (*dto.RegistrationView, error) {
	if err := authorize(actor, models.CapRegistrationSubmit); err != nil {
		return nil, err
	}
	courseIDs, err := s.validateSelection(ctx, req)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsForStudent(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing registration")
	}
	if exists {
		return nil, appErrors.ErrDuplicateRegistration
	}

	reg := newRegistration(actor.UserID, courseIDs, s.now())
	if err := s.repo.Create(ctx, reg); err != nil {
		if errors.Is(err, repository.ErrDuplicateStudentRegistration) {
			return nil, appErrors.ErrDuplicateRegistration
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}

	s.metrics.RecordSubmission("create")
	s.emitAudit(ctx, actor, models.AuditActionRegistrationSubmit, reg, nil)
	return s.resolver.one(ctx, reg)
}

// Resubmit replaces the course selection of a registration owned by the caller and resets its review state.
func (s *RegistrationService) Resubmit(ctx context.Context, actor *models.Actor, registrationID string, req dto.SubmitRegistrationRequest) (*dto.RegistrationView, error) {
	if err := authorize(actor, models.CapRegistrationSubmit); err != nil {
		return nil, err
	}
	courseIDs, err := s.validateSelection(ctx, req)
	if err != nil {
		return nil, err
	}

	reg, err := s.repo.FindByIDAndStudent(ctx, registrationID, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}

	before := entriesSnapshot(reg)
	resubmit(reg, courseIDs, s.now())
	if err := s.repo.Update(ctx, reg, reg.Version); err != nil {
		return nil, mapVersionedWriteError(err)
	}

	s.metrics.RecordSubmission("resubmit")
	s.emitAudit(ctx, actor, models.AuditActionRegistrationResubmit, reg, before)
	return s.resolver.one(ctx, reg)
}

// GetForStudent returns the caller's registration, or nil when none exists.
func (s *RegistrationService) GetForStudent(ctx context.Context, actor *models.Actor) (*dto.RegistrationView, error) {
	if err := authorize(actor, models.CapRegistrationSubmit); err != nil {
		return nil, err
	}
	reg, err := s.repo.FindByStudent(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return s.resolver.one(ctx, reg)
}

// ListAll returns every registration resolved with student and course details.
func (s *RegistrationService) ListAll(ctx context.Context, actor *models.Actor, filter dto.RegistrationFilter) ([]dto.RegistrationView, error) {
	if err := authorize(actor, models.CapRegistrationList); err != nil {
		return nil, err
	}
	regs, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	if filter.Screened != nil {
		filtered := regs[:0]
		for _, reg := range regs {
			if reg.Screened() == *filter.Screened {
				filtered = append(filtered, reg)
			}
		}
		regs = filtered
	}
	return s.resolver.many(ctx, regs)
}

// CheckConflicts reports identical time slots among the candidate courses.
func (s *RegistrationService) CheckConflicts(ctx context.Context, actor *models.Actor, req dto.ConflictCheckRequest) (*dto.ConflictCheckResult, error) {
	if err := authorize(actor, models.CapCatalogRead); err != nil {
		return nil, err
	}
	courses, err := s.courses.FindByIDs(ctx, normalizeIDs(req.CourseIDs))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	conflicts := FindScheduleConflicts(req.CourseIDs, NewCatalogMap(courses))
	return &dto.ConflictCheckResult{HasConflict: len(conflicts) > 0, Conflicts: conflicts}, nil
}

// validateSelection checks the payload, drops duplicate IDs, requires every course to exist
// and rejects literal time slot clashes.
func (s *RegistrationService) validateSelection(ctx context.Context, req dto.SubmitRegistrationRequest) ([]string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "at least one course is required")
	}
	courseIDs := normalizeIDs(req.CourseIDs())
	if len(courseIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one course is required")
	}

	courses, err := s.courses.FindByIDs(ctx, courseIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	catalog := NewCatalogMap(courses)
	for _, id := range courseIDs {
		if _, ok := catalog.Lookup(id); !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("course %s does not exist", id))
		}
	}
	if HasScheduleConflict(courseIDs, catalog) {
		return nil, appErrors.ErrScheduleConflict
	}
	return courseIDs, nil
}

func (s *RegistrationService) emitAudit(ctx context.Context, actor *models.Actor, action string, reg *models.Registration, before []byte) {
	recordAudit(ctx, s.audit, s.logger, actor, action, reg, before)
}

func recordAudit(ctx context.Context, audit auditRecorder, logger *zap.Logger, actor *models.Actor, action string, reg *models.Registration, before []byte) {
	if audit == nil {
		return
	}
	regID := reg.ID
	entry := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "registrations",
		ResourceID: &regID,
		OldValues:  before,
		NewValues:  entriesSnapshot(reg),
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record registration audit log", zap.String("registration_id", reg.ID), zap.String("action", action), zap.Error(err))
	}
}

func entriesSnapshot(reg *models.Registration) []byte {
	payload, _ := json.Marshal(map[string]interface{}{"version": reg.Version, "courses": reg.Courses})
	return payload
}

func mapVersionedWriteError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConflict, "registration was modified by someone else, reload and try again")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save registration")
}

// registrationResolver joins registrations with the student and course records they reference.
type registrationResolver struct {
	courses courseLookup
	users   identityResolver
}

func (r *registrationResolver) one(ctx context.Context, reg *models.Registration) (*dto.RegistrationView, error) {
	views, err := r.many(ctx, []models.Registration{*reg})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (r *registrationResolver) many(ctx context.Context, regs []models.Registration) ([]dto.RegistrationView, error) {
	views := make([]dto.RegistrationView, 0, len(regs))
	if len(regs) == 0 {
		return views, nil
	}

	var studentIDs, courseIDs []string
	seenStudent := map[string]struct{}{}
	seenCourse := map[string]struct{}{}
	for _, reg := range regs {
		if _, ok := seenStudent[reg.StudentID]; !ok {
			seenStudent[reg.StudentID] = struct{}{}
			studentIDs = append(studentIDs, reg.StudentID)
		}
		for _, entry := range reg.Courses {
			if _, ok := seenCourse[entry.CourseID]; !ok {
				seenCourse[entry.CourseID] = struct{}{}
				courseIDs = append(courseIDs, entry.CourseID)
			}
		}
	}

	courses, err := r.courses.FindByIDs(ctx, courseIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve courses")
	}
	users, err := r.users.FindByIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve students")
	}
	catalog := NewCatalogMap(courses)
	students := make(map[string]models.User, len(users))
	for _, u := range users {
		students[u.ID] = u
	}

	for i := range regs {
		views = append(views, buildRegistrationView(&regs[i], catalog, students))
	}
	return views, nil
}

func buildRegistrationView(reg *models.Registration, catalog CourseCatalog, students map[string]models.User) dto.RegistrationView {
	view := dto.RegistrationView{
		ID:            reg.ID,
		StudentID:     reg.StudentID,
		Courses:       make([]dto.RegistrationEntryView, len(reg.Courses)),
		Screened:      reg.Screened(),
		OverallStatus: reg.OverallStatus(),
		Version:       reg.Version,
		SubmittedAt:   reg.SubmittedAt,
		UpdatedAt:     reg.UpdatedAt,
	}
	if u, ok := students[reg.StudentID]; ok {
		view.Student = &dto.StudentSummary{ID: u.ID, Email: u.Email, FullName: u.FullName, StudentNumber: u.StudentNumber}
	}
	for i, entry := range reg.Courses {
		ev := dto.RegistrationEntryView{CourseID: entry.CourseID, Status: entry.Status, Feedback: entry.Feedback}
		if course, ok := catalog.Lookup(entry.CourseID); ok {
			ev.Course = &dto.CourseSummary{ID: course.ID, Code: course.Code, Name: course.Name, Instructor: course.Instructor, Times: course.Times}
		}
		view.Courses[i] = ev
	}
	return view
}
