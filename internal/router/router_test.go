package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/handler"
	"github.com/noah-isme/crams-api/internal/models"
	"github.com/noah-isme/crams-api/internal/service"
	"github.com/noah-isme/crams-api/pkg/config"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
)

type tokenTable map[string]*models.JWTClaims

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := t[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

type auditSink struct {
	actions []string
}

func (a *auditSink) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

// stubServices answers every handler dependency with a fixed payload and records calls.
type stubServices struct {
	calls []string
}

func (s *stubServices) hit(name string) { s.calls = append(s.calls, name) }

func (s *stubServices) Create(context.Context, *models.Actor, dto.SubmitRegistrationRequest) (*dto.RegistrationView, error) {
	s.hit("registration.create")
	return &dto.RegistrationView{ID: "reg-1"}, nil
}

func (s *stubServices) Resubmit(_ context.Context, _ *models.Actor, id string, _ dto.SubmitRegistrationRequest) (*dto.RegistrationView, error) {
	s.hit("registration.resubmit")
	return &dto.RegistrationView{ID: id}, nil
}

func (s *stubServices) GetForStudent(context.Context, *models.Actor) (*dto.RegistrationView, error) {
	s.hit("registration.mine")
	return nil, nil
}

func (s *stubServices) ListAll(context.Context, *models.Actor, dto.RegistrationFilter) ([]dto.RegistrationView, error) {
	s.hit("registration.list")
	return []dto.RegistrationView{}, nil
}

func (s *stubServices) CheckConflicts(context.Context, *models.Actor, dto.ConflictCheckRequest) (*dto.ConflictCheckResult, error) {
	s.hit("registration.conflicts")
	return &dto.ConflictCheckResult{Conflicts: []dto.SlotConflict{}}, nil
}

func (s *stubServices) Roster(context.Context, *models.Actor, dto.RegistrationFilter, string) (*service.ExportFile, error) {
	s.hit("registration.export")
	return &service.ExportFile{Filename: "r.csv", ContentType: "text/csv", Body: []byte("x\n")}, nil
}

func (s *stubServices) DecideCourse(_ context.Context, _ *models.Actor, id, _ string, req dto.DecisionRequest) (*dto.RegistrationView, error) {
	s.hit("review.course." + string(req.Decision))
	return &dto.RegistrationView{ID: id}, nil
}

func (s *stubServices) DecideBulk(_ context.Context, _ *models.Actor, id string, _ dto.BulkDecisionRequest) (*dto.RegistrationView, error) {
	s.hit("review.bulk")
	return &dto.RegistrationView{ID: id}, nil
}

func (s *stubServices) DecideAll(_ context.Context, _ *models.Actor, id string, req dto.DecisionRequest) (*dto.RegistrationView, error) {
	s.hit("review.all." + string(req.Decision))
	return &dto.RegistrationView{ID: id}, nil
}

type courseStub struct{ calls *stubServices }

func (c courseStub) List(context.Context, *models.Actor, models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	c.calls.hit("course.list")
	return []models.Course{}, &models.Pagination{Page: 1, PageSize: 100}, nil
}

func (c courseStub) Get(_ context.Context, _ *models.Actor, id string) (*models.Course, error) {
	c.calls.hit("course.get")
	return &models.Course{ID: id}, nil
}

func (c courseStub) Create(context.Context, *models.Actor, dto.UpsertCourseRequest) (*models.Course, error) {
	c.calls.hit("course.create")
	return &models.Course{ID: "c1"}, nil
}

func (c courseStub) Update(_ context.Context, _ *models.Actor, id string, _ dto.UpsertCourseRequest) (*models.Course, error) {
	c.calls.hit("course.update")
	return &models.Course{ID: id}, nil
}

func (c courseStub) Delete(context.Context, *models.Actor, string) error {
	c.calls.hit("course.delete")
	return nil
}

type notificationStub struct{ calls *stubServices }

func (n notificationStub) List(context.Context, *models.Actor) ([]models.Notification, error) {
	n.calls.hit("notification.list")
	return []models.Notification{}, nil
}

func (n notificationStub) MarkRead(context.Context, *models.Actor, string) error {
	n.calls.hit("notification.read")
	return nil
}

func (n notificationStub) MarkAllRead(context.Context, *models.Actor) (int64, error) {
	n.calls.hit("notification.read-all")
	return 0, nil
}

func (n notificationStub) Delete(context.Context, *models.Actor, string) error {
	n.calls.hit("notification.delete")
	return nil
}

func (n notificationStub) Send(context.Context, *models.Actor, dto.SendNotificationRequest) (*dto.SendNotificationResult, error) {
	n.calls.hit("notification.send")
	return &dto.SendNotificationResult{}, nil
}

type accountStub struct{ calls *stubServices }

func (a accountStub) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	a.calls.hit("auth.login")
	return &models.LoginResponse{AccessToken: "t"}, nil
}

func (a accountStub) Me(_ context.Context, actor *models.Actor) (*models.UserInfo, error) {
	a.calls.hit("auth.me")
	return &models.UserInfo{ID: actor.UserID}, nil
}

func (a accountStub) List(context.Context, *models.Actor, models.UserFilter) ([]models.User, *models.Pagination, error) {
	a.calls.hit("user.list")
	return []models.User{}, &models.Pagination{}, nil
}

func (a accountStub) Create(context.Context, *models.Actor, dto.CreateUserRequest) (*models.User, error) {
	a.calls.hit("user.create")
	return &models.User{ID: "u-1"}, nil
}

func (a accountStub) Delete(context.Context, *models.Actor, string) error {
	a.calls.hit("user.delete")
	return nil
}

func (a accountStub) RegisterStudent(context.Context, dto.RegisterStudentRequest) (*models.User, error) {
	a.calls.hit("auth.register")
	return &models.User{ID: "u-2", Role: models.RoleStudent}, nil
}

func (a accountStub) Directory(context.Context, *models.Actor, models.UserFilter) ([]dto.DirectoryEntry, *models.Pagination, error) {
	a.calls.hit("user.directory")
	return []dto.DirectoryEntry{}, &models.Pagination{}, nil
}

func newTestEngine(t *testing.T) (*gin.Engine, *stubServices, *auditSink) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stubs := &stubServices{}
	audit := &auditSink{}
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	handlers := Handlers{
		Auth:          handler.NewAuthHandler(accountStub{stubs}),
		Users:         handler.NewUserHandler(accountStub{stubs}),
		Courses:       handler.NewCourseHandler(courseStub{stubs}),
		Registrations: handler.NewRegistrationHandler(stubs, stubs),
		Review:        handler.NewReviewHandler(stubs),
		Notifications: handler.NewNotificationHandler(notificationStub{stubs}),
		Metrics:       handler.NewMetricsHandler(nil, nil),
	}
	deps := Dependencies{
		Tokens: tokenTable{
			"student": {UserID: "stu-1", Role: models.RoleStudent},
			"advisor": {UserID: "adv-1", Role: models.RoleAdvisor},
			"admin":   {UserID: "adm-1", Role: models.RoleAdmin},
		},
		Audit:  audit,
		Logger: zap.NewNop(),
	}
	return New(cfg, handlers, deps), stubs, audit
}

func perform(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterPublicEndpoints(t *testing.T) {
	r, stubs, _ := newTestEngine(t)

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@b.c","password":"x"}`).Code)
	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/api/v1/auth/register", "",
		`{"email":"new@b.c","password":"secret1","full_name":"New","student_number":"S-9"}`).Code)
	assert.Equal(t, http.StatusNotFound, perform(r, http.MethodGet, "/docs/index.html", "", "").Code)
	assert.Equal(t, []string{"auth.login", "auth.register"}, stubs.calls)
}

func TestRouterCapabilities(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
		call   string
	}{
		{"anonymous registration list", http.MethodGet, "/api/v1/registrations", "", "", http.StatusUnauthorized, ""},
		{"student cannot list", http.MethodGet, "/api/v1/registrations", "student", "", http.StatusForbidden, ""},
		{"advisor lists", http.MethodGet, "/api/v1/registrations", "advisor", "", http.StatusOK, "registration.list"},
		{"student reads own", http.MethodGet, "/api/v1/registrations/me", "student", "", http.StatusOK, "registration.mine"},
		{"advisor cannot submit", http.MethodPost, "/api/v1/registrations", "advisor", `{"courses":[{"course_id":"c1"}]}`, http.StatusForbidden, ""},
		{"student submits", http.MethodPost, "/api/v1/registrations", "student", `{"courses":[{"course_id":"c1"}]}`, http.StatusCreated, "registration.create"},
		{"student checks conflicts", http.MethodPost, "/api/v1/registrations/conflicts", "student", `{"course_ids":["c1"]}`, http.StatusOK, "registration.conflicts"},
		{"student cannot review", http.MethodPost, "/api/v1/registrations/reg-1/approve", "student", "", http.StatusForbidden, ""},
		{"admin cannot review", http.MethodPost, "/api/v1/registrations/reg-1/courses/c1/reject", "admin", "", http.StatusForbidden, ""},
		{"advisor rejects course", http.MethodPost, "/api/v1/registrations/reg-1/courses/c1/reject", "advisor", "", http.StatusOK, "review.course.reject"},
		{"advisor approves all", http.MethodPost, "/api/v1/registrations/reg-1/approve", "advisor", "", http.StatusOK, "review.all.approve"},
		{"advisor bulk", http.MethodPost, "/api/v1/registrations/reg-1/bulk-action", "advisor", `{"course_ids":["c1"],"action":"approve"}`, http.StatusOK, "review.bulk"},
		{"student reads catalog", http.MethodGet, "/api/v1/courses", "student", "", http.StatusOK, "course.list"},
		{"advisor cannot manage catalog", http.MethodDelete, "/api/v1/courses/c1", "advisor", "", http.StatusForbidden, ""},
		{"mark all read is static", http.MethodPut, "/api/v1/notifications/mark-all-read", "student", "", http.StatusOK, "notification.read-all"},
		{"mark one read", http.MethodPut, "/api/v1/notifications/n-1/read", "student", "", http.StatusOK, "notification.read"},
		{"student cannot send", http.MethodPost, "/api/v1/notifications/send", "student", `{"recipients":["x"],"title":"t","message":"m"}`, http.StatusForbidden, ""},
		{"advisor cannot manage users", http.MethodGet, "/api/v1/users", "advisor", "", http.StatusForbidden, ""},
		{"admin lists users", http.MethodGet, "/api/v1/users", "admin", "", http.StatusOK, "user.list"},
		{"advisor reads directory", http.MethodGet, "/api/v1/users/directory?role=STUDENT", "advisor", "", http.StatusOK, "user.directory"},
		{"student cannot read directory", http.MethodGet, "/api/v1/users/directory?role=ADVISOR", "student", "", http.StatusForbidden, ""},
		{"anonymous directory", http.MethodGet, "/api/v1/users/directory?role=STUDENT", "", "", http.StatusUnauthorized, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, stubs, _ := newTestEngine(t)
			w := perform(r, tc.method, tc.path, tc.token, tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			if tc.call == "" {
				assert.Empty(t, stubs.calls)
				return
			}
			assert.Equal(t, []string{tc.call}, stubs.calls)
		})
	}
}

func TestRouterAuditsExport(t *testing.T) {
	r, stubs, audit := newTestEngine(t)

	w := perform(r, http.MethodGet, "/api/v1/registrations/export?format=csv", "advisor", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"registration.export"}, stubs.calls)
	assert.Equal(t, []string{models.AuditActionRegistrationExport}, audit.actions)
}
