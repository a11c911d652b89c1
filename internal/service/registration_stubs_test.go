package service

import (
	"context"
	"database/sql"
	"sync"

	"github.com/noah-isme/crams-api/internal/models"
	"github.com/noah-isme/crams-api/internal/repository"
)

type memoryRegistrationRepo struct {
	mu       sync.Mutex
	byID     map[string]models.Registration
	seq      int
	updateFn func(reg *models.Registration)
}

func newMemoryRegistrationRepo() *memoryRegistrationRepo {
	return &memoryRegistrationRepo{byID: map[string]models.Registration{}}
}

func cloneRegistration(reg models.Registration) models.Registration {
	reg.Courses = append([]models.CourseEntry(nil), reg.Courses...)
	return reg
}

func (m *memoryRegistrationRepo) FindByID(_ context.Context, id string) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := cloneRegistration(reg)
	return &c, nil
}

func (m *memoryRegistrationRepo) FindByStudent(_ context.Context, studentID string) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, reg := range m.byID {
		if reg.StudentID == studentID {
			c := cloneRegistration(reg)
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryRegistrationRepo) FindByIDAndStudent(ctx context.Context, id, studentID string) (*models.Registration, error) {
	reg, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.StudentID != studentID {
		return nil, sql.ErrNoRows
	}
	return reg, nil
}

func (m *memoryRegistrationRepo) ExistsForStudent(ctx context.Context, studentID string) (bool, error) {
	_, err := m.FindByStudent(ctx, studentID)
	return err == nil, nil
}

func (m *memoryRegistrationRepo) List(_ context.Context) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Registration, 0, len(m.byID))
	for i := 1; i <= m.seq; i++ {
		if reg, ok := m.byID[regID(i)]; ok {
			out = append(out, cloneRegistration(reg))
		}
	}
	return out, nil
}

func (m *memoryRegistrationRepo) Create(_ context.Context, reg *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.StudentID == reg.StudentID {
			return repository.ErrDuplicateStudentRegistration
		}
	}
	m.seq++
	reg.ID = regID(m.seq)
	m.byID[reg.ID] = cloneRegistration(*reg)
	return nil
}

func (m *memoryRegistrationRepo) Update(_ context.Context, reg *models.Registration, expectedVersion int64) error {
	if m.updateFn != nil {
		m.updateFn(reg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[reg.ID]
	if !ok || stored.Version != expectedVersion {
		return sql.ErrNoRows
	}
	reg.Version = expectedVersion + 1
	m.byID[reg.ID] = cloneRegistration(*reg)
	return nil
}

// bump simulates a concurrent writer.
func (m *memoryRegistrationRepo) bump(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg := m.byID[id]
	reg.Version++
	m.byID[id] = reg
}

func regID(n int) string {
	return "reg-" + string(rune('0'+n))
}

type stubCourseLookup struct {
	catalog CatalogMap
	calls   int
}

func (s *stubCourseLookup) FindByIDs(_ context.Context, ids []string) ([]models.Course, error) {
	s.calls++
	var out []models.Course
	for _, id := range ids {
		if c, ok := s.catalog[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type stubIdentityResolver struct {
	users map[string]models.User
}

func (s *stubIdentityResolver) FindByIDs(_ context.Context, ids []string) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type stubAuditRecorder struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (s *stubAuditRecorder) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *log)
	return nil
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (s *stubNotifier) Notify(_ context.Context, n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
}

func testCatalog() CatalogMap {
	return NewCatalogMap([]models.Course{
		{ID: "c1", Code: "CS101", Name: "Intro to CS", Instructor: "Dr. Ada", Times: models.TimeSlots{slot("Mon", "09:00", "10:00")}},
		{ID: "c2", Code: "MA201", Name: "Linear Algebra", Times: models.TimeSlots{slot("Tue", "09:00", "10:00")}},
		{ID: "c3", Code: "PH110", Name: "Physics", Times: models.TimeSlots{slot("Wed", "11:00", "12:00")}},
		{ID: "c4", Code: "EN100", Name: "Writing", Times: models.TimeSlots{slot("Mon", "09:00", "10:00")}},
	})
}

func testUsers() map[string]models.User {
	number := "S-001"
	return map[string]models.User{
		"stu-1": {ID: "stu-1", Email: "stu1@example.com", FullName: "Student One", Role: models.RoleStudent, StudentNumber: &number},
		"stu-2": {ID: "stu-2", Email: "stu2@example.com", FullName: "Student Two", Role: models.RoleStudent},
	}
}

var (
	studentOne = &models.Actor{UserID: "stu-1", Role: models.RoleStudent}
	studentTwo = &models.Actor{UserID: "stu-2", Role: models.RoleStudent}
	advisor    = &models.Actor{UserID: "adv-1", Role: models.RoleAdvisor}
	admin      = &models.Actor{UserID: "adm-1", Role: models.RoleAdmin}
)

type registrationFixture struct {
	repo     *memoryRegistrationRepo
	courses  *stubCourseLookup
	audit    *stubAuditRecorder
	notifier *stubNotifier
	regs     *RegistrationService
	review   *ReviewService
}

func newRegistrationFixture() *registrationFixture {
	repo := newMemoryRegistrationRepo()
	courses := &stubCourseLookup{catalog: testCatalog()}
	users := &stubIdentityResolver{users: testUsers()}
	audit := &stubAuditRecorder{}
	notifier := &stubNotifier{}
	return &registrationFixture{
		repo:     repo,
		courses:  courses,
		audit:    audit,
		notifier: notifier,
		regs:     NewRegistrationService(repo, courses, users, audit, nil, nil, nil),
		review:   NewReviewService(repo, courses, users, audit, notifier, nil, nil),
	}
}
