package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	"github.com/camatch/camatch-api/internal/repository"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

// MatchSnapshot is the input data for one matching run: the courses under
// consideration, every student holding at least one preference on them
// (with preferences and feedback attached), and the assignments that
// already exist on those courses.
type MatchSnapshot struct {
	Courses     []models.Course
	Students    []models.StudentProfile
	Assignments []models.Assignment
}

// CourseVacancy records the post-run vacancy counter for a course the
// engine touched.
type CourseVacancy struct {
	CourseID  string
	Remaining int
}

// MatchOutcome is the engine's raw output. Assignments are unpersisted;
// Skipped holds one profile id per course that passed the student over,
// in course processing order.
type MatchOutcome struct {
	Assignments []models.Assignment
	Skipped     []string
	Vacancies   []CourseVacancy
}

// MatchingEngine allocates TA vacancies course by course. It is pure
// in-memory computation: no I/O, no persistence, no domain errors.
type MatchingEngine struct {
	scorer *CandidateScorer
	logger *zap.Logger
}

// NewMatchingEngine constructs an engine.
func NewMatchingEngine(scorer *CandidateScorer, logger *zap.Logger) *MatchingEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		scorer = NewCandidateScorer(nil, logger)
	}
	return &MatchingEngine{scorer: scorer, logger: logger}
}

type scoredCandidate struct {
	student *models.StudentProfile
	score   CandidateScore
}

// Run walks the snapshot's courses in order. For each course with
// remaining vacancies it scores every eligible candidate, stable-sorts
// them by priority vector, hands the top candidates a pending assignment
// and appends the rest to the skipped list. Selection decrements the
// in-memory vacancy counter on the snapshot's course; callers persist the
// new assignments and counters in one transaction.
func (e *MatchingEngine) Run(snapshot *MatchSnapshot) *MatchOutcome {
	outcome := &MatchOutcome{
		Assignments: []models.Assignment{},
		Skipped:     []string{},
		Vacancies:   []CourseVacancy{},
	}
	if snapshot == nil {
		return outcome
	}

	mc := NewMatchContext()
	now := time.Now().UTC()

	assignmentCounts := make(map[string]int)
	assigned := make(map[string]struct{}, len(snapshot.Assignments))
	for _, a := range snapshot.Assignments {
		assignmentCounts[a.CourseID]++
		assigned[assignmentKey(a.StudentID, a.CourseID)] = struct{}{}
	}

	for i := range snapshot.Courses {
		course := &snapshot.Courses[i]
		remaining := course.Vacancies - assignmentCounts[course.ID]
		if remaining <= 0 {
			continue
		}

		candidates := e.collectCandidates(mc, course, snapshot.Students, assigned)
		if len(candidates) == 0 {
			continue
		}

		// Stable keeps snapshot order on full ties, which makes runs
		// reproducible for identical input.
		sort.SliceStable(candidates, func(a, b int) bool {
			return candidates[a].score.Vector.Compare(candidates[b].score.Vector) > 0
		})

		selected := remaining
		if selected > len(candidates) {
			selected = len(candidates)
		}

		for _, candidate := range candidates[:selected] {
			assignment := models.Assignment{
				ID:        uuid.NewString(),
				StudentID: candidate.student.ID,
				CourseID:  course.ID,
				Status:    models.AssignmentStatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			outcome.Assignments = append(outcome.Assignments, assignment)
			assigned[assignmentKey(candidate.student.ID, course.ID)] = struct{}{}
			course.Vacancies--
		}
		for _, candidate := range candidates[selected:] {
			outcome.Skipped = append(outcome.Skipped, candidate.student.ID)
		}
		if selected > 0 {
			outcome.Vacancies = append(outcome.Vacancies, CourseVacancy{CourseID: course.ID, Remaining: course.Vacancies})
		}
	}

	return outcome
}

// collectCandidates gathers, in snapshot order, every student holding a
// preference for the course who is not already assigned to it. Students
// assigned to other courses stay eligible here; the single-assignment
// rule is enforced by the manual entry points instead.
func (e *MatchingEngine) collectCandidates(mc *MatchContext, course *models.Course, students []models.StudentProfile, assigned map[string]struct{}) []scoredCandidate {
	candidates := make([]scoredCandidate, 0, len(students))
	for i := range students {
		student := &students[i]
		pref := preferenceFor(student, course.ID)
		if pref == nil {
			continue
		}
		if _, taken := assigned[assignmentKey(student.ID, course.ID)]; taken {
			continue
		}
		candidates = append(candidates, scoredCandidate{
			student: student,
			score:   e.scorer.Score(mc, student, course, pref),
		})
	}
	return candidates
}

func preferenceFor(student *models.StudentProfile, courseID string) *models.Preference {
	for i := range student.Preferences {
		if student.Preferences[i].CourseID == courseID {
			return &student.Preferences[i]
		}
	}
	return nil
}

func assignmentKey(studentID, courseID string) string {
	return studentID + "|" + courseID
}

type matchingCourseRepo interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	UpdateVacanciesWithTx(ctx context.Context, tx *sqlx.Tx, id string, vacancies int) error
}

type matchingPreferenceRepo interface {
	ListByCourseIDs(ctx context.Context, courseIDs []string) ([]models.Preference, error)
}

type matchingStudentRepo interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.StudentProfile, error)
}

type matchingAssignmentRepo interface {
	ListByCourseIDs(ctx context.Context, courseIDs []string) ([]models.Assignment, error)
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, assignments []models.Assignment) error
	ListDetailsByIDs(ctx context.Context, ids []string) ([]models.AssignmentDetail, error)
}

type matchingFeedbackRepo interface {
	ListByStudentIDs(ctx context.Context, studentIDs []string) ([]models.InstructorFeedback, error)
}

type matchingAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// MatchingService loads a snapshot, runs the engine and persists the
// outcome in a single transaction. Runs on one instance are serialized;
// the database transaction still protects against racing instances.
type MatchingService struct {
	db          txBeginner
	courses     matchingCourseRepo
	preferences matchingPreferenceRepo
	students    matchingStudentRepo
	assignments matchingAssignmentRepo
	feedback    matchingFeedbackRepo
	audit       matchingAuditLogger
	engine      *MatchingEngine
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger

	runMu sync.Mutex
}

// NewMatchingService constructs a matching service.
func NewMatchingService(
	db txBeginner,
	courses matchingCourseRepo,
	preferences matchingPreferenceRepo,
	students matchingStudentRepo,
	assignments matchingAssignmentRepo,
	feedback matchingFeedbackRepo,
	audit matchingAuditLogger,
	engine *MatchingEngine,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *MatchingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = NewMatchingEngine(nil, logger)
	}
	return &MatchingService{
		db:          db,
		courses:     courses,
		preferences: preferences,
		students:    students,
		assignments: assignments,
		feedback:    feedback,
		audit:       audit,
		engine:      engine,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Run executes one matching run over the requested courses (all courses
// when the filter is empty) and returns the persisted result.
func (s *MatchingService) Run(ctx context.Context, actorUserID string, req dto.MatchRequest) (*dto.MatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid match request")
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := time.Now()
	snapshot, err := s.loadSnapshot(ctx, req.CourseIDs)
	if err != nil {
		return nil, err
	}

	outcome := s.engine.Run(snapshot)

	if err := s.persistOutcome(ctx, outcome); err != nil {
		return nil, err
	}

	details := []models.AssignmentDetail{}
	if len(outcome.Assignments) > 0 {
		ids := make([]string, len(outcome.Assignments))
		for i, a := range outcome.Assignments {
			ids[i] = a.ID
		}
		details, err = s.assignments.ListDetailsByIDs(ctx, ids)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "match run committed but result lookup failed")
		}
	}

	duration := time.Since(started)
	if s.metrics != nil {
		s.metrics.RecordMatchingRun(len(outcome.Assignments), len(outcome.Skipped), duration)
	}
	s.invalidateAnalytics(ctx)
	s.recordRunAudit(ctx, actorUserID, snapshot, outcome)

	s.logger.Info("matching run finished",
		zap.Int("courses", len(snapshot.Courses)),
		zap.Int("students", len(snapshot.Students)),
		zap.Int("created", len(outcome.Assignments)),
		zap.Int("skipped", len(outcome.Skipped)),
		zap.Duration("duration", duration))

	return &dto.MatchResult{Assignments: details, SkippedStudents: outcome.Skipped}, nil
}

// loadSnapshot gathers the run's working set: courses in catalog order,
// applicants in profile creation order with preferences and feedback
// attached, and the assignments already standing on those courses.
func (s *MatchingService) loadSnapshot(ctx context.Context, courseIDs []string) (*MatchSnapshot, error) {
	courses, err := s.courses.List(ctx, models.CourseFilter{IDs: courseIDs})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}

	ids := make([]string, len(courses))
	for i, course := range courses {
		ids[i] = course.ID
	}

	prefs, err := s.preferences.ListByCourseIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}

	prefsByStudent := make(map[string][]models.Preference)
	studentIDs := make([]string, 0, len(prefs))
	for _, pref := range prefs {
		if _, seen := prefsByStudent[pref.StudentID]; !seen {
			studentIDs = append(studentIDs, pref.StudentID)
		}
		prefsByStudent[pref.StudentID] = append(prefsByStudent[pref.StudentID], pref)
	}

	students, err := s.students.ListByIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}

	feedback, err := s.feedback.ListByStudentIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feedback history")
	}
	feedbackByStudent := make(map[string][]models.InstructorFeedback)
	for _, entry := range feedback {
		feedbackByStudent[entry.StudentID] = append(feedbackByStudent[entry.StudentID], entry)
	}

	for i := range students {
		students[i].Preferences = prefsByStudent[students[i].ID]
		students[i].Feedback = feedbackByStudent[students[i].ID]
	}

	existing, err := s.assignments.ListByCourseIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}

	return &MatchSnapshot{Courses: courses, Students: students, Assignments: existing}, nil
}

// persistOutcome writes the run's assignments and vacancy counters in one
// transaction. Any failure rolls the whole run back.
func (s *MatchingService) persistOutcome(ctx context.Context, outcome *MatchOutcome) error {
	if len(outcome.Assignments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin match transaction")
	}

	if err := s.assignments.BulkCreateWithTx(ctx, tx, outcome.Assignments); err != nil {
		tx.Rollback() //nolint:errcheck
		if repository.IsUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "a concurrent run already assigned one of the selected students")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist assignments")
	}

	for _, vacancy := range outcome.Vacancies {
		if err := s.courses.UpdateVacanciesWithTx(ctx, tx, vacancy.CourseID, vacancy.Remaining); err != nil {
			tx.Rollback() //nolint:errcheck
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist vacancies")
		}
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit match run")
	}
	return nil
}

func (s *MatchingService) invalidateAnalytics(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, analyticsCachePrefix+"*"); err != nil {
		s.logger.Warn("analytics cache invalidation failed", zap.Error(err))
	}
}

func (s *MatchingService) recordRunAudit(ctx context.Context, actorUserID string, snapshot *MatchSnapshot, outcome *MatchOutcome) {
	if s.audit == nil {
		return
	}
	detail := map[string]interface{}{
		"courses":  len(snapshot.Courses),
		"students": len(snapshot.Students),
		"created":  len(outcome.Assignments),
		"skipped":  len(outcome.Skipped),
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		payload = nil
	}
	log := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    models.AuditActionMatchRun,
		Resource:  "matching",
		NewValues: payload,
		CreatedAt: time.Now(),
	}
	if actorUserID != "" {
		log.UserID = &actorUserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", models.AuditActionMatchRun), zap.Error(err))
	}
}
