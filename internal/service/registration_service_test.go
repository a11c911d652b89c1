package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crams-api/internal/dto"
	"github.com/noah-isme/crams-api/internal/models"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
)

func submission(ids ...string) dto.SubmitRegistrationRequest {
	req := dto.SubmitRegistrationRequest{}
	for _, id := range ids {
		req.Courses = append(req.Courses, dto.CourseRef{CourseID: id})
	}
	return req
}

func TestRegistrationServiceCreate(t *testing.T) {
	f := newRegistrationFixture()

	view, err := f.regs.Create(context.Background(), studentOne, submission("c1", "c2"))
	require.NoError(t, err)
	assert.Equal(t, "stu-1", view.StudentID)
	assert.Equal(t, int64(1), view.Version)
	assert.Equal(t, models.OverallStatusPending, view.OverallStatus)
	assert.False(t, view.Screened)
	require.Len(t, view.Courses, 2)
	assert.Equal(t, "CS101", view.Courses[0].Course.Code)
	assert.Equal(t, "Student One", view.Student.FullName)
	for _, entry := range view.Courses {
		assert.Equal(t, models.EntryStatusPending, entry.Status)
	}
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionRegistrationSubmit, f.audit.logs[0].Action)
}

func TestRegistrationServiceCreateRejectsSecondRegistration(t *testing.T) {
	f := newRegistrationFixture()
	ctx := context.Background()

	_, err := f.regs.Create(ctx, studentOne, submission("c1"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.regs.Create(ctx, studentOne, submission("c2"))
		assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateRegistration), "attempt %d: %v", i, err)
	}

	_, err = f.regs.Create(ctx, studentTwo, submission("c2"))
	assert.NoError(t, err)
}

func TestRegistrationServiceCreateMapsUniqueViolation(t *testing.T) {
	f := newRegistrationFixture()
	ctx := context.Background()
	_, err := f.regs.Create(ctx, studentOne, submission("c1"))
	require.NoError(t, err)

	// the pre-check misses a concurrent insert; the store still refuses it
	f.regs.repo = racingRepo{f.repo}
	_, err = f.regs.Create(ctx, studentOne, submission("c2"))
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateRegistration))
}

type racingRepo struct {
	*memoryRegistrationRepo
}

func (racingRepo) ExistsForStudent(context.Context, string) (bool, error) { return false, nil }

func TestRegistrationServiceCreateValidation(t *testing.T) {
	f := newRegistrationFixture()
	ctx := context.Background()

	_, err := f.regs.Create(ctx, studentOne, submission())
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.regs.Create(ctx, studentOne, submission("c1", "ghost"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "ghost")

	_, err = f.regs.Create(ctx, studentOne, submission("c1", "c4"))
	assert.True(t, appErrors.Is(err, appErrors.ErrScheduleConflict))

	view, err := f.regs.Create(ctx, studentOne, submission("c1", "c2", "c1"))
	require.NoError(t, err)
	assert.Len(t, view.Courses, 2)
}

func TestRegistrationServiceCreateRequiresSubmitCapability(t *testing.T) {
	f := newRegistrationFixture()

	_, err := f.regs.Create(context.Background(), advisor, submission("c1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.regs.Create(context.Background(), nil, submission("c1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestRegistrationServiceResubmitResetsEntries(t *testing.T) {
	f := newRegistrationFixture()
	ctx := context.Background()

	created, err := f.regs.Create(ctx, studentOne, submission("c1", "c2"))
	require.NoError(t, err)
	_, err = f.review.DecideCourse(ctx, advisor, created.ID, "c1", dto.DecisionRequest{Decision: models.DecisionApprove})
	require.NoError(t, err)
	_, err = f.review.DecideCourse(ctx, advisor, created.ID, "c2", dto.DecisionRequest{Decision: models.DecisionReject})
	require.NoError(t, err)

	view, err := f.regs.Resubmit(ctx, studentOne, created.ID, submission("c1", "c3"))
	require.NoError(t, err)
	require.Len(t, view.Courses, 2)
	assert.Equal(t, "c1", view.Courses[0].CourseID)
	assert.Equal(t, "c3", view.Courses[1].CourseID)
	for _, entry := range view.Courses {
		assert.Equal(t, models.EntryStatusPending, entry.Status)
		assert.Empty(t, entry.Feedback)
	}
	assert.Equal(t, int64(4), view.Version)
	assert.Equal(t, created.SubmittedAt, view.SubmittedAt)
}

func TestRegistrationServiceResubmitRequiresOwnership(t *testing.T) {
	f := newRegistrationFixture()
	ctx := context.Background()

	created, err := f.regs.Create(ctx, studentOne, submission("c1"))
	require.NoError(t, err)

	_, err = f.regs.Resubmit(ctx, studentTwo, created.ID, submission("c2"))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.regs.Resubmit(ctx, studentOne, "reg-missing", submission("c2"))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestRegistrationServiceResubmitStaleVersion(t *testing.T) {
	f := newRegistrationFixture()
	ctx := context.Background()

	created, err := f.regs.Create(ctx, studentOne, submission("c1"))
	require.NoError(t, err)

	f.repo.updateFn = func(reg *models.Registration) { f.repo.bump(reg.ID) }
	_, err = f.regs.Resubmit(ctx, studentOne, created.ID, submission("c2"))
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestRegistrationServiceGetForStudent(t *testing.T) {
	f := newRegistrationFixture()
	ctx := context.Background()

	view, err := f.regs.GetForStudent(ctx, studentOne)
	require.NoError(t, err)
	assert.Nil(t, view)

	_, err = f.regs.Create(ctx, studentOne, submission("c2"))
	require.NoError(t, err)
	view, err = f.regs.GetForStudent(ctx, studentOne)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, "c2", view.Courses[0].CourseID)
}

func TestRegistrationServiceListAllFiltersByScreened(t *testing.T) {
	f := newRegistrationFixture()
	ctx := context.Background()

	first, err := f.regs.Create(ctx, studentOne, submission("c1"))
	require.NoError(t, err)
	_, err = f.regs.Create(ctx, studentTwo, submission("c2"))
	require.NoError(t, err)
	_, err = f.review.DecideAll(ctx, advisor, first.ID, dto.DecisionRequest{Decision: models.DecisionApprove})
	require.NoError(t, err)

	all, err := f.regs.ListAll(ctx, admin, dto.RegistrationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	screened := true
	done, err := f.regs.ListAll(ctx, advisor, dto.RegistrationFilter{Screened: &screened})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, first.ID, done[0].ID)
	assert.Equal(t, "stu1@example.com", done[0].Student.Email)

	pending := false
	open, err := f.regs.ListAll(ctx, advisor, dto.RegistrationFilter{Screened: &pending})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "stu-2", open[0].StudentID)

	_, err = f.regs.ListAll(ctx, studentOne, dto.RegistrationFilter{})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestRegistrationServiceCheckConflicts(t *testing.T) {
	f := newRegistrationFixture()

	result, err := f.regs.CheckConflicts(context.Background(), studentOne, dto.ConflictCheckRequest{CourseIDs: []string{"c1", "c2", "c4"}})
	require.NoError(t, err)
	assert.True(t, result.HasConflict)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, []string{"c1", "c4"}, result.Conflicts[0].CourseIDs)

	result, err = f.regs.CheckConflicts(context.Background(), studentOne, dto.ConflictCheckRequest{CourseIDs: []string{"c1", "c2"}})
	require.NoError(t, err)
	assert.False(t, result.HasConflict)
	assert.NotNil(t, result.Conflicts)
}
