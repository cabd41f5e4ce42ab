package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

type courseStore interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	ListWithCounts(ctx context.Context, filter models.CourseFilter) ([]models.CourseWithCounts, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	BulkUpsertByCode(ctx context.Context, courses []models.Course) error
}

type courseApplicationLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.ApplicationDetail, error)
}

type courseAssignmentLister interface {
	ListByCourseIDs(ctx context.Context, courseIDs []string) ([]models.Assignment, error)
}

type courseStudentLister interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.StudentProfile, error)
}

type courseFeedbackLister interface {
	ListByStudentIDs(ctx context.Context, studentIDs []string) ([]models.InstructorFeedback, error)
}

type courseAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CourseService owns the course catalog: admin CRUD, CSV import, and the
// professor-facing course and applicant views.
type CourseService struct {
	repo         courseStore
	applications courseApplicationLister
	assignments  courseAssignmentLister
	students     courseStudentLister
	feedback     courseFeedbackLister
	scorer       *CandidateScorer
	audit        courseAuditLogger
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseStore, applications courseApplicationLister, assignments courseAssignmentLister, students courseStudentLister, feedback courseFeedbackLister, scorer *CandidateScorer, audit courseAuditLogger, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		scorer = NewCandidateScorer(nil, logger)
	}
	return &CourseService{
		repo:         repo,
		applications: applications,
		assignments:  assignments,
		students:     students,
		feedback:     feedback,
		scorer:       scorer,
		audit:        audit,
		validator:    validate,
		logger:       logger,
	}
}

// List returns courses with application and roster counts.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseWithCounts, error) {
	courses, err := s.repo.ListWithCounts(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new offering. Course codes are unique.
func (s *CourseService) Create(ctx context.Context, req dto.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	track, err := resolveTrack(req.Track)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	}

	course := &models.Course{
		Code:             strings.TrimSpace(req.Code),
		Title:            strings.TrimSpace(req.Title),
		Instructor:       req.Instructor,
		InstructorEmail:  req.InstructorEmail,
		ProfessorID:      req.ProfessorID,
		Track:            track,
		Vacancies:        req.Vacancies,
		GradeThreshold:   req.GradeThreshold,
		SimilarCourses:   req.SimilarCourses,
		CompetencyMatrix: req.CompetencyMatrix,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update replaces a course's mutable fields.
func (s *CourseService) Update(ctx context.Context, id string, req dto.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	track, err := resolveTrack(req.Track)
	if err != nil {
		return nil, err
	}

	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	}

	course.Code = strings.TrimSpace(req.Code)
	course.Title = strings.TrimSpace(req.Title)
	course.Instructor = req.Instructor
	course.InstructorEmail = req.InstructorEmail
	course.ProfessorID = req.ProfessorID
	course.Track = track
	course.Vacancies = req.Vacancies
	course.GradeThreshold = req.GradeThreshold
	course.SimilarCourses = req.SimilarCourses
	course.CompetencyMatrix = req.CompetencyMatrix

	if err := s.repo.Update(ctx, course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes a course.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

// importColumns is the expected CSV layout, header optional.
var importColumns = []string{"code", "title", "instructor", "instructor_email", "track", "vacancies", "grade_threshold", "similar_courses"}

// ImportCSV upserts courses by code from a CSV stream and reports each
// rejected row. A header row is detected and skipped when the first cell
// names the code column.
func (s *CourseService) ImportCSV(ctx context.Context, actorID string, r io.Reader) (*dto.ImportCoursesResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := &dto.ImportCoursesResult{Errors: []dto.ImportRowError{}}
	var toImport []models.Course
	seenCodes := make(map[string]int)

	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to parse csv")
		}
		row++

		if row == 1 && looksLikeHeader(record) {
			continue
		}

		course, rowErr := parseCourseRow(record)
		if rowErr != "" {
			result.Errors = append(result.Errors, dto.ImportRowError{Row: row, Error: rowErr})
			continue
		}

		key := strings.ToLower(course.Code)
		if firstRow, dup := seenCodes[key]; dup {
			result.Errors = append(result.Errors, dto.ImportRowError{Row: row, Error: fmt.Sprintf("duplicate of row %d (code %s)", firstRow, course.Code)})
			continue
		}
		seenCodes[key] = row
		toImport = append(toImport, course)
	}

	if len(toImport) > 0 {
		if err := s.repo.BulkUpsertByCode(ctx, toImport); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import courses")
		}
	}
	result.Imported = len(toImport)

	if s.audit != nil {
		payload := fmt.Sprintf(`{"imported":%d,"rejected":%d}`, result.Imported, len(result.Errors))
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:    &actorID,
			Action:    models.AuditActionCourseImport,
			Resource:  "courses",
			NewValues: []byte(payload),
		}); err != nil {
			s.logger.Warn("failed to record course import audit log", zap.Error(err))
		}
	}

	s.logger.Info("course import finished",
		zap.Int("imported", result.Imported),
		zap.Int("rejected", len(result.Errors)),
	)
	return result, nil
}

func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	return strings.Contains(first, "code")
}

func parseCourseRow(record []string) (models.Course, string) {
	get := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	code := get(0)
	title := get(1)
	if code == "" {
		return models.Course{}, "course code is required"
	}
	if title == "" {
		return models.Course{}, "title is required"
	}

	course := models.Course{Code: code, Title: title}
	if v := get(2); v != "" {
		course.Instructor = &v
	}
	if v := get(3); v != "" {
		if !strings.Contains(v, "@") {
			return models.Course{}, fmt.Sprintf("invalid instructor email %q", v)
		}
		course.InstructorEmail = &v
	}
	if v := get(4); v != "" {
		track, ok := models.ParseTrack(v)
		if !ok {
			return models.Course{}, fmt.Sprintf("unknown track %q", v)
		}
		course.Track = &track
	}
	if v := get(5); v != "" {
		vacancies, err := strconv.Atoi(v)
		if err != nil || vacancies < 0 {
			return models.Course{}, fmt.Sprintf("invalid vacancies %q", v)
		}
		course.Vacancies = vacancies
	}
	if v := get(6); v != "" {
		course.GradeThreshold = &v
	}
	if v := get(7); v != "" {
		course.SimilarCourses = &v
	}
	return course, ""
}

// OwnedCourses lists a professor's courses with counts.
func (s *CourseService) OwnedCourses(ctx context.Context, professorID string) ([]models.CourseWithCounts, error) {
	return s.List(ctx, models.CourseFilter{ProfessorID: professorID})
}

// OwnedCourseIDs returns just the ids of a professor's courses.
func (s *CourseService) OwnedCourseIDs(ctx context.Context, professorID string) ([]string, error) {
	courses, err := s.repo.List(ctx, models.CourseFilter{ProfessorID: professorID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	ids := make([]string, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// EnsureOwned loads a course and verifies professor ownership. Admins pass
// an empty professorID and skip the check.
func (s *CourseService) EnsureOwned(ctx context.Context, courseID, professorID string) (*models.Course, error) {
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if professorID == "" {
		return course, nil
	}
	if course.ProfessorID == nil || *course.ProfessorID != professorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another professor")
	}
	return course, nil
}

// Applications returns the scored applicant list for a course. Scores are
// previews computed in a fresh context; the matching run recomputes them.
func (s *CourseService) Applications(ctx context.Context, courseID string) ([]dto.CourseApplication, error) {
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}

	apps, err := s.applications.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	if len(apps) == 0 {
		return []dto.CourseApplication{}, nil
	}

	studentIDs := make([]string, 0, len(apps))
	for _, app := range apps {
		studentIDs = append(studentIDs, app.StudentID)
	}

	profiles, err := s.students.ListByIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applicants")
	}
	profileByID := make(map[string]*models.StudentProfile, len(profiles))
	for i := range profiles {
		profileByID[profiles[i].ID] = &profiles[i]
	}

	entries, err := s.feedback.ListByStudentIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feedback")
	}
	for i := range entries {
		if profile, ok := profileByID[entries[i].StudentID]; ok {
			profile.Feedback = append(profile.Feedback, entries[i])
		}
	}

	roster, err := s.assignments.ListByCourseIDs(ctx, []string{courseID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	assigned := make(map[string]bool, len(roster))
	for _, a := range roster {
		assigned[a.StudentID] = true
	}

	mc := NewMatchContext()
	out := make([]dto.CourseApplication, 0, len(apps))
	for _, app := range apps {
		profile, ok := profileByID[app.StudentID]
		if !ok {
			continue
		}
		pref := app.Preference
		score := s.scorer.Score(mc, profile, course, &pref)
		out = append(out, dto.CourseApplication{
			ApplicationDetail: app,
			Assigned:          assigned[app.StudentID],
			Score: dto.ApplicationScore{
				Composite:     score.Composite,
				SkillScore:    score.Skills.WeightedScore,
				SkillCoverage: score.Skills.Coverage,
				MatchedSkills: score.Skills.MatchedSkills,
			},
		})
	}
	return out, nil
}

func resolveTrack(raw *string) (*models.Track, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	track, ok := models.ParseTrack(*raw)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown track %q", *raw))
	}
	return &track, nil
}
