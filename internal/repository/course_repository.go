package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/camatch/camatch-api/internal/models"
)

const courseColumns = `id, code, title, instructor, instructor_email, professor_id, track, vacancies,
        grade_threshold, similar_courses, competency_matrix, created_at, updated_at`

// CourseRepository handles persistence for course offerings.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new repository instance.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses matching the filter in stable catalog order.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	base := "FROM courses WHERE 1=1"
	var conditions []string
	var args []interface{}

	if len(filter.IDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.IDs))
	}
	if filter.Track != nil {
		conditions = append(conditions, fmt.Sprintf("track = $%d", len(args)+1))
		args = append(args, *filter.Track)
	}
	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(title) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY code ASC, id ASC", courseColumns, base)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListWithCounts returns courses enriched with application and roster sizes.
func (r *CourseRepository) ListWithCounts(ctx context.Context, filter models.CourseFilter) ([]models.CourseWithCounts, error) {
	base := `FROM courses c
        LEFT JOIN (SELECT course_id, COUNT(*) AS cnt FROM preferences GROUP BY course_id) p ON p.course_id = c.id
        LEFT JOIN (SELECT course_id, COUNT(*) AS cnt FROM assignments GROUP BY course_id) a ON a.course_id = c.id
        WHERE 1=1`
	var conditions []string
	var args []interface{}

	if len(filter.IDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("c.id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.IDs))
	}
	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT c.id, c.code, c.title, c.instructor, c.instructor_email, c.professor_id, c.track,
        c.vacancies, c.grade_threshold, c.similar_courses, c.competency_matrix, c.created_at, c.updated_at,
        COALESCE(p.cnt, 0) AS application_count, COALESCE(a.cnt, 0) AS assignment_count
        %s ORDER BY c.code ASC, c.id ASC`, base)
	var courses []models.CourseWithCounts
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses with counts: %w", err)
	}
	return courses, nil
}

// FindByID returns a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCode returns a course by its catalog code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE LOWER(code) = LOWER($1)", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// ExistsByCode checks uniqueness of a course code.
func (r *CourseRepository) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM courses WHERE LOWER(code) = LOWER($1)"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, code, title, instructor, instructor_email, professor_id, track, vacancies,
        grade_threshold, similar_courses, competency_matrix, created_at, updated_at)
        VALUES (:id, :code, :title, :instructor, :instructor_email, :professor_id, :track, :vacancies,
        :grade_threshold, :similar_courses, :competency_matrix, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET code = :code, title = :title, instructor = :instructor,
        instructor_email = :instructor_email, professor_id = :professor_id, track = :track, vacancies = :vacancies,
        grade_threshold = :grade_threshold, similar_courses = :similar_courses, competency_matrix = :competency_matrix,
        updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateVacanciesWithTx persists a recomputed vacancy counter inside the
// caller's transaction.
func (r *CourseRepository) UpdateVacanciesWithTx(ctx context.Context, tx *sqlx.Tx, id string, vacancies int) error {
	const query = `UPDATE courses SET vacancies = $2, updated_at = $3 WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, id, vacancies, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update course vacancies: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course vacancies: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AdjustVacancies shifts the vacancy counter by delta. Decrements only
// apply while the counter is positive; an exhausted course reports
// sql.ErrNoRows so callers can reject the write.
func (r *CourseRepository) AdjustVacancies(ctx context.Context, id string, delta int) error {
	query := `UPDATE courses SET vacancies = vacancies + $2, updated_at = $3 WHERE id = $1`
	if delta < 0 {
		query += ` AND vacancies >= $4`
	}
	args := []interface{}{id, delta, time.Now().UTC()}
	if delta < 0 {
		args = append(args, -delta)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("adjust course vacancies: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust course vacancies: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a course record.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BulkUpsertByCode inserts or refreshes imported courses keyed by code in a
// single transaction.
func (r *CourseRepository) BulkUpsertByCode(ctx context.Context, courses []models.Course) error {
	if len(courses) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin course import: %w", err)
	}

	const query = `INSERT INTO courses (id, code, title, instructor, instructor_email, professor_id, track, vacancies,
        grade_threshold, similar_courses, competency_matrix, created_at, updated_at)
        VALUES (:id, :code, :title, :instructor, :instructor_email, :professor_id, :track, :vacancies,
        :grade_threshold, :similar_courses, :competency_matrix, :created_at, :updated_at)
        ON CONFLICT (code) DO UPDATE SET
        title = EXCLUDED.title,
        instructor = EXCLUDED.instructor,
        instructor_email = EXCLUDED.instructor_email,
        track = EXCLUDED.track,
        vacancies = EXCLUDED.vacancies,
        grade_threshold = EXCLUDED.grade_threshold,
        similar_courses = EXCLUDED.similar_courses,
        competency_matrix = EXCLUDED.competency_matrix,
        updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	for i := range courses {
		course := &courses[i]
		if course.ID == "" {
			course.ID = uuid.NewString()
		}
		if course.CreatedAt.IsZero() {
			course.CreatedAt = now
		}
		course.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("upsert course %s: %w", course.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit course import: %w", err)
	}
	return nil
}
