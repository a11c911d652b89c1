package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/crams-api/internal/models"
)

// ErrDuplicateCourseCode is returned when another course already uses the code.
var ErrDuplicateCourseCode = errors.New("course code already exists")

// ErrCourseInUse is returned when a registration still references the course.
var ErrCourseInUse = errors.New("course is referenced by registrations")

const foreignKeyViolation = "23503"

const courseColumns = `id, code, name, instructor, seat_limit, enrolled, prerequisites, times, created_at, updated_at`

// CourseRepository handles persistence of the course catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns catalog courses ordered by code together with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := `FROM courses`
	var args []interface{}
	if filter.Search != "" {
		base += fmt.Sprintf(" WHERE (LOWER(code) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY code ASC LIMIT %d OFFSET %d", courseColumns, base, size, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err = lookupError(err); err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindByIDs returns the courses matching the identifiers. Unknown identifiers are skipped.
func (r *CourseRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	if len(ids) == 0 {
		return []models.Course{}, nil
	}
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id::text = ANY($1)`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find courses: %w", err)
	}
	return courses, nil
}

// ExistsByCode checks whether a course with the code exists, ignoring excludeID.
func (r *CourseRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := `SELECT 1 FROM courses WHERE LOWER(code) = LOWER($1)`
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	if course.Prerequisites == nil {
		course.Prerequisites = pq.StringArray{}
	}

	const query = `INSERT INTO courses (id, code, name, instructor, seat_limit, enrolled, prerequisites, times, created_at, updated_at)
        VALUES (:id, :code, :name, :instructor, :seat_limit, :enrolled, :prerequisites, :times, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return mapCourseWriteError("create course", err)
	}
	return nil
}

// Update replaces the mutable fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	if course.Prerequisites == nil {
		course.Prerequisites = pq.StringArray{}
	}
	const query = `UPDATE courses SET code = :code, name = :name, instructor = :instructor, seat_limit = :seat_limit,
        enrolled = :enrolled, prerequisites = :prerequisites, times = :times, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		if err = lookupError(err); err == sql.ErrNoRows {
			return err
		}
		return mapCourseWriteError("update course", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a course from the catalog.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return ErrCourseInUse
		}
		if err = lookupError(err); err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("delete course: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func mapCourseWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateCourseCode
	}
	return fmt.Errorf("%s: %w", op, err)
}
