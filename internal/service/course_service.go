package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	"github.com/noah-isme/crams-api/internal/repository"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
)

const catalogCachePattern = "catalog:*"

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type catalogPage struct {
	Courses []models.Course   `json:"courses"`
	Page    models.Pagination `json:"page"`
}

// CourseService manages the course catalog.
type CourseService struct {
	repo      courseRepository
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the catalog service. cache and audit may be nil.
func NewCourseService(repo courseRepository, cache *CacheService, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cache, audit: audit, validator: validate, logger: logger}
}

// List returns a page of the catalog, served from cache when possible.
func (s *CourseService) List(ctx context.Context, actor *models.Actor, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if err := authorize(actor, models.CapCatalogRead); err != nil {
		return nil, nil, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 100
	}
	filter.Search = strings.TrimSpace(filter.Search)

	key := fmt.Sprintf("catalog:list:%s:%d:%d", strings.ToLower(filter.Search), filter.Page, filter.PageSize)
	var cached catalogPage
	if s.cache.Get(ctx, key, &cached) {
		return cached.Courses, &cached.Page, nil
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	page := catalogPage{Courses: courses, Page: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}}
	s.cache.Set(ctx, key, page, 0)
	return page.Courses, &page.Page, nil
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, actor *models.Actor, id string) (*models.Course, error) {
	if err := authorize(actor, models.CapCatalogRead); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// Create adds a course to the catalog.
func (s *CourseService) Create(ctx context.Context, actor *models.Actor, req dto.UpsertCourseRequest) (*models.Course, error) {
	if err := authorize(actor, models.CapCatalogManage); err != nil {
		return nil, err
	}
	course, err := s.buildCourse(ctx, "", req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, mapCourseWriteError(err, "failed to create course")
	}
	s.afterWrite(ctx, actor, models.AuditActionCourseCreate, course.ID, nil, course)
	return course, nil
}

// Update replaces a course's attributes.
func (s *CourseService) Update(ctx context.Context, actor *models.Actor, id string, req dto.UpsertCourseRequest) (*models.Course, error) {
	if err := authorize(actor, models.CapCatalogManage); err != nil {
		return nil, err
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	course, err := s.buildCourse(ctx, id, req)
	if err != nil {
		return nil, err
	}
	course.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, mapCourseWriteError(err, "failed to update course")
	}
	s.afterWrite(ctx, actor, models.AuditActionCourseUpdate, id, existing, course)
	return course, nil
}

// Delete removes a course that no registration references.
func (s *CourseService) Delete(ctx context.Context, actor *models.Actor, id string) error {
	if err := authorize(actor, models.CapCatalogManage); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		case errors.Is(err, repository.ErrCourseInUse):
			return appErrors.Clone(appErrors.ErrConflict, "course is part of existing registrations")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.afterWrite(ctx, actor, models.AuditActionCourseDelete, id, nil, nil)
	return nil
}

func (s *CourseService) load(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *CourseService) buildCourse(ctx context.Context, id string, req dto.UpsertCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsByCode(ctx, code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course code %s already exists", code))
	}

	prerequisites := pq.StringArray{}
	for _, p := range normalizeIDs(req.Prerequisites) {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" && p != code {
			prerequisites = append(prerequisites, p)
		}
	}
	times := models.TimeSlots(req.Times)
	if times == nil {
		times = models.TimeSlots{}
	}
	return &models.Course{
		ID:            id,
		Code:          code,
		Name:          strings.TrimSpace(req.Name),
		Instructor:    strings.TrimSpace(req.Instructor),
		Limit:         req.Limit,
		Enrolled:      req.Enrolled,
		Prerequisites: prerequisites,
		Times:         times,
	}, nil
}

func (s *CourseService) afterWrite(ctx context.Context, actor *models.Actor, action, id string, before, after *models.Course) {
	s.cache.Invalidate(ctx, catalogCachePattern)
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "courses",
		ResourceID: &id,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record course audit log", zap.String("course_id", id), zap.Error(err))
	}
}

func mapCourseWriteError(err error, msg string) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateCourseCode):
		return appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}
