package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	"github.com/noah-isme/crams-api/internal/repository"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
)

type mockUserRepo struct {
	users      map[string]*models.User
	listCount  int
	lastFilter models.UserFilter
	createErr  error
	auditLogs  []*models.AuditLog
}

func (m *mockUserRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.lastFilter = filter
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users) + m.listCount, nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByStudentNumber(_ context.Context, studentNumber string) (*models.User, error) {
	for _, u := range m.users {
		if u.StudentNumber != nil && *u.StudentNumber == studentNumber {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = false
	return nil
}

func (m *mockUserRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func TestUserServiceCreate(t *testing.T) {
	repo := &mockUserRepo{}
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Create(context.Background(), admin, dto.CreateUserRequest{
		Email:         "New.Student@Example.com",
		Password:      "secret123",
		FullName:      "New Student",
		Role:          models.RoleStudent,
		StudentNumber: " S-100 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "new.student@example.com", user.Email)
	assert.True(t, user.Active)
	require.NotNil(t, user.StudentNumber)
	assert.Equal(t, "S-100", *user.StudentNumber)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret123")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.auditLogs[0].Action)
}

func TestUserServiceCreateValidation(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": {ID: "u1", Email: "taken@example.com"}}}
	svc := NewUserService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, admin, dto.CreateUserRequest{Email: "x@example.com", Password: "secret123", FullName: "X", Role: "TEACHER"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, admin, dto.CreateUserRequest{Email: "x@example.com", Password: "secret123", FullName: "X", Role: models.RoleStudent})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, admin, dto.CreateUserRequest{Email: "taken@example.com", Password: "secret123", FullName: "X", Role: models.RoleAdvisor})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	repo.createErr = repository.ErrDuplicateUser
	_, err = svc.Create(ctx, admin, dto.CreateUserRequest{Email: "y@example.com", Password: "secret123", FullName: "Y", Role: models.RoleStudent, StudentNumber: "S-001"})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = svc.Create(ctx, advisor, dto.CreateUserRequest{Email: "z@example.com", Password: "secret123", FullName: "Z", Role: models.RoleAdvisor})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": {ID: "u1"}, "u2": {ID: "u2"}}}
	svc := NewUserService(repo, nil, nil)

	users, pagination, err := svc.List(context.Background(), admin, models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)

	bogus := models.UserRole("TEACHER")
	_, _, err = svc.List(context.Background(), admin, models.UserFilter{Role: &bogus})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"stu-1": {ID: "stu-1", Active: true}}}
	svc := NewUserService(repo, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, admin, "stu-1"))
	assert.False(t, repo.users["stu-1"].Active)
	assert.Equal(t, models.AuditActionUserDelete, repo.auditLogs[0].Action)

	assert.True(t, appErrors.Is(svc.Delete(ctx, admin, "missing"), appErrors.ErrNotFound))
	assert.True(t, appErrors.Is(svc.Delete(ctx, admin, admin.UserID), appErrors.ErrValidation))
	assert.True(t, appErrors.Is(svc.Delete(ctx, studentOne, "stu-1"), appErrors.ErrForbidden))
}

func TestUserServiceRegisterStudent(t *testing.T) {
	repo := &mockUserRepo{}
	svc := NewUserService(repo, nil, nil)

	user, err := svc.RegisterStudent(context.Background(), dto.RegisterStudentRequest{
		Email:         "Self.Signup@Example.com",
		Password:      "secret123",
		FullName:      " Self Signup ",
		StudentNumber: " S-200 ",
		IP:            "10.0.0.9",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.Equal(t, "self.signup@example.com", user.Email)
	assert.Equal(t, "Self Signup", user.FullName)
	assert.True(t, user.Active)
	require.NotNil(t, user.StudentNumber)
	assert.Equal(t, "S-200", *user.StudentNumber)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret123")))

	require.Len(t, repo.auditLogs, 1)
	logEntry := repo.auditLogs[0]
	assert.Equal(t, models.AuditActionUserRegister, logEntry.Action)
	require.NotNil(t, logEntry.UserID)
	assert.Equal(t, user.ID, *logEntry.UserID)
	assert.Equal(t, "10.0.0.9", logEntry.IPAddress)
}

func TestUserServiceRegisterStudentRejectsDuplicatesAndBadInput(t *testing.T) {
	taken := "S-1"
	repo := &mockUserRepo{users: map[string]*models.User{
		"stu-1": {ID: "stu-1", Email: "ana@example.com", StudentNumber: &taken},
	}}
	svc := NewUserService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.RegisterStudent(ctx, dto.RegisterStudentRequest{Email: "ana@example.com", Password: "secret123", FullName: "A", StudentNumber: "S-2"})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = svc.RegisterStudent(ctx, dto.RegisterStudentRequest{Email: "other@example.com", Password: "secret123", FullName: "B", StudentNumber: "S-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = svc.RegisterStudent(ctx, dto.RegisterStudentRequest{Email: "c@example.com", Password: "secret123", FullName: "C", StudentNumber: "   "})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.RegisterStudent(ctx, dto.RegisterStudentRequest{Email: "d@example.com", Password: "123", FullName: "D", StudentNumber: "S-3"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	repo.createErr = repository.ErrDuplicateUser
	_, err = svc.RegisterStudent(ctx, dto.RegisterStudentRequest{Email: "e@example.com", Password: "secret123", FullName: "E", StudentNumber: "S-4"})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Empty(t, repo.auditLogs)
}

func TestUserServiceDirectory(t *testing.T) {
	number := "S-1"
	repo := &mockUserRepo{users: map[string]*models.User{
		"stu-1": {ID: "stu-1", FullName: "Ana", Email: "ana@example.com", Role: models.RoleStudent, StudentNumber: &number, PasswordHash: "hash"},
	}}
	svc := NewUserService(repo, nil, nil)
	ctx := context.Background()
	studentRole := models.RoleStudent

	entries, pagination, err := svc.Directory(ctx, advisor, models.UserFilter{Role: &studentRole})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "S-1", entries[0].StudentNumber)
	assert.Equal(t, 1, pagination.TotalCount)
	require.NotNil(t, repo.lastFilter.Active)
	assert.True(t, *repo.lastFilter.Active)

	_, _, err = svc.Directory(ctx, admin, models.UserFilter{Role: &studentRole})
	assert.NoError(t, err)

	adminRole := models.RoleAdmin
	_, _, err = svc.Directory(ctx, advisor, models.UserFilter{Role: &adminRole})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	_, _, err = svc.Directory(ctx, advisor, models.UserFilter{})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, _, err = svc.Directory(ctx, studentOne, models.UserFilter{Role: &studentRole})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
