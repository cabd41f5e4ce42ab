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

const studentProfileColumns = `id, user_id, full_name, degree_program, level_of_study, interests,
        resume_path, transcript_path, photo_url, resume_text, transcript_text, skill_keywords,
        created_at, updated_at`

// StudentRepository manages persistence for student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts a new student profile.
func (r *StudentRepository) Create(ctx context.Context, profile *models.StudentProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO student_profiles (id, user_id, full_name, degree_program, level_of_study, interests,
        resume_path, transcript_path, photo_url, resume_text, transcript_text, skill_keywords, created_at, updated_at)
        VALUES (:id, :user_id, :full_name, :degree_program, :level_of_study, :interests,
        :resume_path, :transcript_path, :photo_url, :resume_text, :transcript_text, :skill_keywords, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("create student profile: %w", err)
	}
	return nil
}

// FindByID fetches a profile by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM student_profiles WHERE id = $1", studentProfileColumns)
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindByUserID fetches the profile owned by a user account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM student_profiles WHERE user_id = $1", studentProfileColumns)
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update modifies the editable profile fields.
func (r *StudentRepository) Update(ctx context.Context, profile *models.StudentProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE student_profiles SET full_name = :full_name, degree_program = :degree_program,
        level_of_study = :level_of_study, interests = :interests, photo_url = :photo_url, updated_at = :updated_at
        WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, profile)
	if err != nil {
		return fmt.Errorf("update student profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student profile: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateResume stores the uploaded resume path with its extracted text.
func (r *StudentRepository) UpdateResume(ctx context.Context, id, path string, text *string) error {
	const query = `UPDATE student_profiles SET resume_path = $2, resume_text = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path, text, time.Now().UTC()); err != nil {
		return fmt.Errorf("update resume: %w", err)
	}
	return nil
}

// UpdateTranscript stores the uploaded transcript path with its extracted text.
func (r *StudentRepository) UpdateTranscript(ctx context.Context, id, path string, text *string) error {
	const query = `UPDATE student_profiles SET transcript_path = $2, transcript_text = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path, text, time.Now().UTC()); err != nil {
		return fmt.Errorf("update transcript: %w", err)
	}
	return nil
}

// UpdateSkillKeywords replaces the stored keyword set derived from documents.
func (r *StudentRepository) UpdateSkillKeywords(ctx context.Context, id string, keywords *string) error {
	const query = `UPDATE student_profiles SET skill_keywords = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, keywords, time.Now().UTC()); err != nil {
		return fmt.Errorf("update skill keywords: %w", err)
	}
	return nil
}

// ListByIDs loads profiles for the given IDs in a stable creation order.
func (r *StudentRepository) ListByIDs(ctx context.Context, ids []string) ([]models.StudentProfile, error) {
	if len(ids) == 0 {
		return []models.StudentProfile{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM student_profiles WHERE id = ANY($1) ORDER BY created_at ASC, id ASC`, studentProfileColumns)
	var profiles []models.StudentProfile
	if err := r.db.SelectContext(ctx, &profiles, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list student profiles: %w", err)
	}
	return profiles, nil
}

// Search finds active students whose name, UNI, or email matches the term.
func (r *StudentRepository) Search(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT sp.id, u.uni, u.email, sp.full_name
        FROM student_profiles sp
        JOIN users u ON u.id = sp.user_id
        WHERE u.active = true AND (LOWER(sp.full_name) LIKE $1 OR LOWER(u.uni) LIKE $1 OR LOWER(u.email) LIKE $1)
        ORDER BY sp.full_name ASC NULLS LAST, u.uni ASC
        LIMIT %d`, limit)
	term := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
	var summaries []models.StudentSummary
	if err := r.db.SelectContext(ctx, &summaries, query, term); err != nil {
		return nil, fmt.Errorf("search students: %w", err)
	}
	return summaries, nil
}

// UNIsByProfileIDs maps profile IDs to the owning user's UNI.
func (r *StudentRepository) UNIsByProfileIDs(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	const query = `SELECT sp.id, u.uni FROM student_profiles sp JOIN users u ON u.id = sp.user_id WHERE sp.id = ANY($1)`
	rows := []struct {
		ID  string `db:"id"`
		UNI string `db:"uni"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("resolve student unis: %w", err)
	}
	result := make(map[string]string, len(rows))
	for _, row := range rows {
		result[row.ID] = row.UNI
	}
	return result, nil
}
