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

// ErrDuplicateStudentRegistration is returned when the unique index on registrations.student_id rejects an insert.
var ErrDuplicateStudentRegistration = errors.New("registration already exists for student")

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// lookupError reports a malformed identifier as a plain miss so callers see sql.ErrNoRows.
func lookupError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation {
		return sql.ErrNoRows
	}
	return err
}

const registrationColumns = `id, student_id, version, submitted_at, updated_at`

// RegistrationRepository persists registrations together with their ordered course entries.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// FindByID loads a registration and its entries.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	return r.findOne(ctx, query, id)
}

// FindByStudent loads the registration owned by the student.
func (r *RegistrationRepository) FindByStudent(ctx context.Context, studentID string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE student_id = $1`
	return r.findOne(ctx, query, studentID)
}

// FindByIDAndStudent loads a registration only when it is owned by the student.
func (r *RegistrationRepository) FindByIDAndStudent(ctx context.Context, id, studentID string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1 AND student_id = $2`
	return r.findOne(ctx, query, id, studentID)
}

func (r *RegistrationRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Registration, error) {
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, args...); err != nil {
		if err = lookupError(err); err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	entries, err := r.entriesFor(ctx, []string{reg.ID})
	if err != nil {
		return nil, err
	}
	reg.Courses = entries[reg.ID]
	return &reg, nil
}

// ExistsForStudent reports whether the student already owns a registration.
func (r *RegistrationRepository) ExistsForStudent(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT 1 FROM registrations WHERE student_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student registration: %w", err)
	}
	return true, nil
}

// List returns every registration, most recently submitted first.
func (r *RegistrationRepository) List(ctx context.Context) ([]models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations ORDER BY submitted_at DESC, id`
	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	if len(regs) == 0 {
		return regs, nil
	}
	ids := make([]string, len(regs))
	for i := range regs {
		ids[i] = regs[i].ID
	}
	entries, err := r.entriesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range regs {
		regs[i].Courses = entries[regs[i].ID]
	}
	return regs, nil
}

func (r *RegistrationRepository) entriesFor(ctx context.Context, registrationIDs []string) (map[string][]models.CourseEntry, error) {
	const query = `SELECT registration_id, position, course_id, status, feedback FROM registration_courses
        WHERE registration_id = ANY($1) ORDER BY registration_id, position`
	var rows []models.CourseEntry
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(registrationIDs)); err != nil {
		return nil, fmt.Errorf("list registration courses: %w", err)
	}
	grouped := make(map[string][]models.CourseEntry, len(registrationIDs))
	for _, row := range rows {
		grouped[row.RegistrationID] = append(grouped[row.RegistrationID], row)
	}
	return grouped, nil
}

// Create inserts a registration and its entries in one transaction.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) (err error) {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if reg.SubmittedAt.IsZero() {
		reg.SubmittedAt = now
	}
	if reg.UpdatedAt.IsZero() {
		reg.UpdatedAt = reg.SubmittedAt
	}
	if reg.Version == 0 {
		reg.Version = 1
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO registrations (id, student_id, version, submitted_at, updated_at)
        VALUES (:id, :student_id, :version, :submitted_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, reg); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateStudentRegistration
		}
		return fmt.Errorf("create registration: %w", err)
	}
	if err = insertEntries(ctx, tx, reg); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// Update replaces the stored entries when the stored version still equals expectedVersion.
// It returns sql.ErrNoRows when the registration is missing or was modified concurrently.
func (r *RegistrationRepository) Update(ctx context.Context, reg *models.Registration, expectedVersion int64) (err error) {
	if reg.UpdatedAt.IsZero() {
		reg.UpdatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateQuery = `UPDATE registrations SET version = version + 1, updated_at = $3 WHERE id = $1 AND version = $2`
	res, err := tx.ExecContext(ctx, updateQuery, reg.ID, expectedVersion, reg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("registration rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM registration_courses WHERE registration_id = $1`, reg.ID); err != nil {
		return fmt.Errorf("clear registration courses: %w", err)
	}
	if err = insertEntries(ctx, tx, reg); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	reg.Version = expectedVersion + 1
	return nil
}

func insertEntries(ctx context.Context, tx *sqlx.Tx, reg *models.Registration) error {
	if len(reg.Courses) == 0 {
		return nil
	}
	placeholders := make([]string, 0, len(reg.Courses))
	args := make([]interface{}, 0, len(reg.Courses)*5)
	for i := range reg.Courses {
		entry := &reg.Courses[i]
		entry.RegistrationID = reg.ID
		entry.Position = i
		base := len(args)
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5))
		args = append(args, reg.ID, i, entry.CourseID, entry.Status, entry.Feedback)
	}
	query := `INSERT INTO registration_courses (registration_id, position, course_id, status, feedback) VALUES ` +
		strings.Join(placeholders, ", ")
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert registration courses: %w", err)
	}
	return nil
}
