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

const assignmentColumns = `id, student_id, course_id, status, created_at, updated_at`

// AssignmentRepository manages persistence for TA assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// FindByID fetches an assignment by ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE id = $1", assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// List returns assignments matching the filter in creation order.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error) {
	base := "FROM assignments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if len(filter.CourseIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("course_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.CourseIDs))
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at ASC, id ASC", assignmentColumns, base)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// ListByCourseIDs loads assignments for the given courses in creation order.
func (r *AssignmentRepository) ListByCourseIDs(ctx context.Context, courseIDs []string) ([]models.Assignment, error) {
	if len(courseIDs) == 0 {
		return []models.Assignment{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE course_id = ANY($1) ORDER BY created_at ASC, id ASC`, assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("list assignments by course: %w", err)
	}
	return assignments, nil
}

// ListDetails returns assignments joined with student and course display
// fields, plus each student's highlight count on other courses.
func (r *AssignmentRepository) ListDetails(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, error) {
	base := `FROM assignments a
        JOIN student_profiles sp ON sp.id = a.student_id
        JOIN users u ON u.id = sp.user_id
        JOIN courses c ON c.id = a.course_id
        WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("a.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if len(filter.CourseIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("a.course_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.CourseIDs))
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.course_id, a.status, a.created_at, a.updated_at,
        sp.full_name AS student_name, u.uni AS student_uni, u.email AS student_email,
        c.code AS course_code, c.title AS course_title, c.instructor, c.instructor_email,
        (SELECT COUNT(*) FROM preferences pr
         WHERE pr.student_id = a.student_id AND pr.course_id <> a.course_id AND pr.highlighted = true) AS highlight_conflicts
        %s ORDER BY c.code ASC, a.created_at ASC, a.id ASC`, base)
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("list assignment details: %w", err)
	}
	return details, nil
}

// ListDetailsByIDs returns joined detail rows for the given assignment
// ids, ordered by course code then creation.
func (r *AssignmentRepository) ListDetailsByIDs(ctx context.Context, ids []string) ([]models.AssignmentDetail, error) {
	if len(ids) == 0 {
		return []models.AssignmentDetail{}, nil
	}
	const query = `SELECT a.id, a.student_id, a.course_id, a.status, a.created_at, a.updated_at,
        sp.full_name AS student_name, u.uni AS student_uni, u.email AS student_email,
        c.code AS course_code, c.title AS course_title, c.instructor, c.instructor_email,
        (SELECT COUNT(*) FROM preferences pr
         WHERE pr.student_id = a.student_id AND pr.course_id <> a.course_id AND pr.highlighted = true) AS highlight_conflicts
        FROM assignments a
        JOIN student_profiles sp ON sp.id = a.student_id
        JOIN users u ON u.id = sp.user_id
        JOIN courses c ON c.id = a.course_id
        WHERE a.id = ANY($1)
        ORDER BY c.code ASC, a.created_at ASC, a.id ASC`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list assignment details by ids: %w", err)
	}
	return details, nil
}

// CountByCourseIDs maps course IDs to their current assignment counts.
func (r *AssignmentRepository) CountByCourseIDs(ctx context.Context, courseIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(courseIDs))
	if len(courseIDs) == 0 {
		return result, nil
	}
	const query = `SELECT course_id, COUNT(*) AS cnt FROM assignments WHERE course_id = ANY($1) GROUP BY course_id`
	rows := []struct {
		CourseID string `db:"course_id"`
		Count    int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("count assignments: %w", err)
	}
	for _, row := range rows {
		result[row.CourseID] = row.Count
	}
	return result, nil
}

// ExistsByStudentAndCourse checks whether the student already holds a slot
// on the course.
func (r *AssignmentRepository) ExistsByStudentAndCourse(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM assignments WHERE student_id = $1 AND course_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return true, nil
}

// ExistsByStudent checks whether the student holds any assignment at all.
func (r *AssignmentRepository) ExistsByStudent(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT 1 FROM assignments WHERE student_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student assignment: %w", err)
	}
	return true, nil
}

// Create persists a single assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	const query = `INSERT INTO assignments (id, student_id, course_id, status, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// BulkCreateWithTx inserts a batch of assignments inside the caller's
// transaction.
func (r *AssignmentRepository) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, assignments []models.Assignment) error {
	const query = `INSERT INTO assignments (id, student_id, course_id, status, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :status, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range assignments {
		assignment := &assignments[i]
		if assignment.ID == "" {
			assignment.ID = uuid.NewString()
		}
		if assignment.CreatedAt.IsZero() {
			assignment.CreatedAt = now
		}
		assignment.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, assignment); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return nil
}

// UpdateStatus transitions an assignment's lifecycle state.
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus) error {
	const query = `UPDATE assignments SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an assignment record.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
