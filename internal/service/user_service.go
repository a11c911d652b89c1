package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	"github.com/noah-isme/crams-api/internal/repository"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByStudentNumber(ctx context.Context, studentNumber string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UserService handles account administration.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, actor *models.Actor, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if err := authorize(actor, models.CapUserManage); err != nil {
		return nil, nil, err
	}
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role filter")
	}
	return s.list(ctx, filter)
}

func (s *UserService) list(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if users == nil {
		users = []models.User{}
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Create provisions a new account.
func (s *UserService) Create(ctx context.Context, actor *models.Actor, req dto.CreateUserRequest) (*models.User, error) {
	if err := authorize(actor, models.CapUserManage); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	studentNumber := strings.TrimSpace(req.StudentNumber)
	if req.Role == models.RoleStudent && studentNumber == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student number is required for students")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(req.Email),
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       true,
		PasswordHash: string(passwordHash),
	}
	if studentNumber != "" {
		user.StudentNumber = &studentNumber
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or student number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
	s.audit(ctx, actor, models.AuditActionUserCreate, user.ID, nil, newPayload)
	return user, nil
}

// RegisterStudent creates an active STUDENT account for an unauthenticated caller.
func (s *UserService) RegisterStudent(ctx context.Context, req dto.RegisterStudentRequest) (*models.User, error) {
	req.StudentNumber = strings.TrimSpace(req.StudentNumber)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if _, err := s.repo.FindByStudentNumber(ctx, req.StudentNumber); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student number already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student number uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	studentNumber := req.StudentNumber
	user := &models.User{
		ID:            uuid.NewString(),
		Email:         strings.ToLower(req.Email),
		FullName:      req.FullName,
		Role:          models.RoleStudent,
		StudentNumber: &studentNumber,
		Active:        true,
		PasswordHash:  string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or student number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register student")
	}

	self := &models.Actor{UserID: user.ID, Role: user.Role, IP: req.IP, UserAgent: req.UserAgent}
	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "student_number": studentNumber})
	s.audit(ctx, self, models.AuditActionUserRegister, user.ID, nil, newPayload)
	s.logger.Info("student registered", zap.String("user_id", user.ID))
	return user, nil
}

// Directory lists active students or advisors for callers that address notifications.
func (s *UserService) Directory(ctx context.Context, actor *models.Actor, filter models.UserFilter) ([]dto.DirectoryEntry, *models.Pagination, error) {
	if err := authorize(actor, models.CapNotificationSend); err != nil {
		return nil, nil, err
	}
	if filter.Role == nil || (*filter.Role != models.RoleStudent && *filter.Role != models.RoleAdvisor) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "role must be STUDENT or ADVISOR")
	}
	active := true
	filter.Active = &active

	users, pagination, err := s.list(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]dto.DirectoryEntry, 0, len(users))
	for _, u := range users {
		entry := dto.DirectoryEntry{ID: u.ID, FullName: u.FullName, Email: u.Email, Role: u.Role}
		if u.StudentNumber != nil {
			entry.StudentNumber = *u.StudentNumber
		}
		entries = append(entries, entry)
	}
	return entries, pagination, nil
}

// Delete deactivates an account. Admins cannot deactivate themselves.
func (s *UserService) Delete(ctx context.Context, actor *models.Actor, id string) error {
	if err := authorize(actor, models.CapUserManage); err != nil {
		return err
	}
	if id == actor.UserID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.audit(ctx, actor, models.AuditActionUserDelete, id, []byte(`{"active":true}`), []byte(`{"active":false}`))
	return nil
}

func (s *UserService) audit(ctx context.Context, actor *models.Actor, action, resourceID string, oldValues, newValues []byte) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}
