package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/camatch/camatch-api/internal/models"
)

const preferenceColumns = `id, student_id, course_id, rank, faculty_requested, grade_in_course,
        basket_grade_average, highlighted, notes, created_at, updated_at`

// PreferenceRepository manages persistence for course preferences.
type PreferenceRepository struct {
	db *sqlx.DB
}

// NewPreferenceRepository constructs a PreferenceRepository.
func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// FindByID fetches a preference by ID.
func (r *PreferenceRepository) FindByID(ctx context.Context, id string) (*models.Preference, error) {
	query := fmt.Sprintf("SELECT %s FROM preferences WHERE id = $1", preferenceColumns)
	var pref models.Preference
	if err := r.db.GetContext(ctx, &pref, query, id); err != nil {
		return nil, err
	}
	return &pref, nil
}

// ListByStudent returns a student's preferences joined with course info,
// most preferred first.
func (r *PreferenceRepository) ListByStudent(ctx context.Context, studentID string) ([]models.PreferenceDetail, error) {
	const query = `SELECT p.id, p.student_id, p.course_id, p.rank, p.faculty_requested, p.grade_in_course,
        p.basket_grade_average, p.highlighted, p.notes, p.created_at, p.updated_at,
        c.code AS course_code, c.title AS course_title
        FROM preferences p
        JOIN courses c ON c.id = p.course_id
        WHERE p.student_id = $1
        ORDER BY p.rank ASC, p.created_at ASC`
	var prefs []models.PreferenceDetail
	if err := r.db.SelectContext(ctx, &prefs, query, studentID); err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	return prefs, nil
}

// ListByCourse returns every application for a course with the applicant's
// identity, in submission order.
func (r *PreferenceRepository) ListByCourse(ctx context.Context, courseID string) ([]models.ApplicationDetail, error) {
	const query = `SELECT p.id, p.student_id, p.course_id, p.rank, p.faculty_requested, p.grade_in_course,
        p.basket_grade_average, p.highlighted, p.notes, p.created_at, p.updated_at,
        sp.full_name AS student_name, u.uni AS student_uni, u.email AS student_email
        FROM preferences p
        JOIN student_profiles sp ON sp.id = p.student_id
        JOIN users u ON u.id = sp.user_id
        WHERE p.course_id = $1
        ORDER BY p.created_at ASC, p.id ASC`
	var apps []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &apps, query, courseID); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// ListByCourseIDs loads every preference targeting the given courses in
// submission order.
func (r *PreferenceRepository) ListByCourseIDs(ctx context.Context, courseIDs []string) ([]models.Preference, error) {
	if len(courseIDs) == 0 {
		return []models.Preference{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM preferences WHERE course_id = ANY($1) ORDER BY created_at ASC, id ASC`, preferenceColumns)
	var prefs []models.Preference
	if err := r.db.SelectContext(ctx, &prefs, query, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("list preferences by course: %w", err)
	}
	return prefs, nil
}

// ExistsForCourse checks whether a student already applied to a course.
func (r *PreferenceRepository) ExistsForCourse(ctx context.Context, studentID, courseID, excludeID string) (bool, error) {
	query := "SELECT 1 FROM preferences WHERE student_id = $1 AND course_id = $2"
	args := []interface{}{studentID, courseID}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course preference: %w", err)
	}
	return true, nil
}

// ExistsRank checks whether a student already holds the given rank.
func (r *PreferenceRepository) ExistsRank(ctx context.Context, studentID string, rank int, excludeID string) (bool, error) {
	query := "SELECT 1 FROM preferences WHERE student_id = $1 AND rank = $2"
	args := []interface{}{studentID, rank}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check preference rank: %w", err)
	}
	return true, nil
}

// Create persists a single preference.
func (r *PreferenceRepository) Create(ctx context.Context, pref *models.Preference) error {
	if pref.ID == "" {
		pref.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = now
	}
	pref.UpdatedAt = now
	const query = `INSERT INTO preferences (id, student_id, course_id, rank, faculty_requested, grade_in_course,
        basket_grade_average, highlighted, notes, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :rank, :faculty_requested, :grade_in_course,
        :basket_grade_average, :highlighted, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pref); err != nil {
		return fmt.Errorf("create preference: %w", err)
	}
	return nil
}

// ReplaceForStudent swaps a student's full preference list in one transaction.
func (r *PreferenceRepository) ReplaceForStudent(ctx context.Context, studentID string, prefs []models.Preference) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace preferences: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE student_id = $1`, studentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear preferences: %w", err)
	}

	const query = `INSERT INTO preferences (id, student_id, course_id, rank, faculty_requested, grade_in_course,
        basket_grade_average, highlighted, notes, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :rank, :faculty_requested, :grade_in_course,
        :basket_grade_average, :highlighted, :notes, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range prefs {
		pref := &prefs[i]
		if pref.ID == "" {
			pref.ID = uuid.NewString()
		}
		pref.StudentID = studentID
		if pref.CreatedAt.IsZero() {
			pref.CreatedAt = now
		}
		pref.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, pref); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert preference: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace preferences: %w", err)
	}
	return nil
}

// Delete removes a preference owned by the student.
func (r *PreferenceRepository) Delete(ctx context.Context, id, studentID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM preferences WHERE id = $1 AND student_id = $2`, id, studentID)
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ToggleHighlight flips the highlight flag and returns the new value.
func (r *PreferenceRepository) ToggleHighlight(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE preferences SET highlighted = NOT highlighted, updated_at = $2 WHERE id = $1 RETURNING highlighted`
	var highlighted bool
	if err := r.db.GetContext(ctx, &highlighted, query, id, time.Now().UTC()); err != nil {
		return false, err
	}
	return highlighted, nil
}

// ListUnassigned returns applications whose student currently holds no
// assignment, one row per filed application, grouped by course.
func (r *PreferenceRepository) ListUnassigned(ctx context.Context) ([]models.UnassignedApplication, error) {
	const query = `SELECT p.student_id, u.uni AS student_uni, sp.full_name AS student_name, u.email AS student_email,
        c.code AS course_code, c.title AS course_title, p.rank, p.highlighted
        FROM preferences p
        JOIN student_profiles sp ON sp.id = p.student_id
        JOIN users u ON u.id = sp.user_id
        JOIN courses c ON c.id = p.course_id
        WHERE NOT EXISTS (SELECT 1 FROM assignments a WHERE a.student_id = p.student_id)
        ORDER BY c.code ASC, p.rank ASC, p.created_at ASC`
	var rows []models.UnassignedApplication
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list unassigned applications: %w", err)
	}
	return rows, nil
}

// CountHighlightsElsewhere counts highlights the student holds on other
// courses, used to surface cross-course contention on rosters.
func (r *PreferenceRepository) CountHighlightsElsewhere(ctx context.Context, studentID, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM preferences WHERE student_id = $1 AND course_id <> $2 AND highlighted = true`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, courseID); err != nil {
		return 0, fmt.Errorf("count highlights: %w", err)
	}
	return count, nil
}
