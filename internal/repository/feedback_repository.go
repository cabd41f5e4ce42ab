package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/camatch/camatch-api/internal/models"
)

const feedbackColumns = `id, assignment_id, student_id, course_id, rating, comment, created_at, updated_at`

// FeedbackRepository manages persistence for instructor feedback.
type FeedbackRepository struct {
	db *sqlx.DB
}

// NewFeedbackRepository constructs a FeedbackRepository.
func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// UpsertByAssignment inserts feedback or replaces the existing entry for
// the same assignment.
func (r *FeedbackRepository) UpsertByAssignment(ctx context.Context, feedback *models.InstructorFeedback) (*models.InstructorFeedback, error) {
	now := time.Now().UTC()
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = now
	}
	feedback.UpdatedAt = now
	query := fmt.Sprintf(`INSERT INTO instructor_feedback (id, assignment_id, student_id, course_id, rating, comment, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (assignment_id)
        DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
        RETURNING %s`, feedbackColumns)
	var stored models.InstructorFeedback
	if err := r.db.GetContext(ctx, &stored, query,
		feedback.ID, feedback.AssignmentID, feedback.StudentID, feedback.CourseID,
		feedback.Rating, feedback.Comment, feedback.CreatedAt, feedback.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert feedback: %w", err)
	}
	return &stored, nil
}

// ListByStudentIDs loads every feedback entry left for the given students.
func (r *FeedbackRepository) ListByStudentIDs(ctx context.Context, studentIDs []string) ([]models.InstructorFeedback, error) {
	if len(studentIDs) == 0 {
		return []models.InstructorFeedback{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM instructor_feedback WHERE student_id = ANY($1) ORDER BY created_at ASC, id ASC`, feedbackColumns)
	var entries []models.InstructorFeedback
	if err := r.db.SelectContext(ctx, &entries, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list feedback by student: %w", err)
	}
	return entries, nil
}

// ListByCourse loads feedback entries for a course, newest first.
func (r *FeedbackRepository) ListByCourse(ctx context.Context, courseID string) ([]models.InstructorFeedback, error) {
	query := fmt.Sprintf(`SELECT %s FROM instructor_feedback WHERE course_id = $1 ORDER BY created_at DESC, id DESC`, feedbackColumns)
	var entries []models.InstructorFeedback
	if err := r.db.SelectContext(ctx, &entries, query, courseID); err != nil {
		return nil, fmt.Errorf("list feedback by course: %w", err)
	}
	return entries, nil
}
