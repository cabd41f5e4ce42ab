package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

type assignmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListDetails(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, error)
	ListDetailsByIDs(ctx context.Context, ids []string) ([]models.AssignmentDetail, error)
	ExistsByStudent(ctx context.Context, studentID string) (bool, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
}

type assignmentCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	AdjustVacancies(ctx context.Context, id string, delta int) error
}

type assignmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentProfile, error)
}

type assignmentAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AssignmentService manages the TA roster outside matching runs: admin
// manual assignments, professor overrides, and revocations. Every write
// keeps the course vacancy counter in step with the roster.
type AssignmentService struct {
	repo      assignmentStore
	courses   assignmentCourseStore
	students  assignmentStudentReader
	audit     assignmentAuditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(repo assignmentStore, courses assignmentCourseStore, students assignmentStudentReader, audit assignmentAuditLogger, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		repo:      repo,
		courses:   courses,
		students:  students,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// ListDetails returns roster rows joined with student and course fields.
func (s *AssignmentService) ListDetails(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, error) {
	details, err := s.repo.ListDetails(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return details, nil
}

// Create places a student on a course roster by hand. A student may hold
// at most one assignment across all courses, and the course must still
// have a vacancy; the counter is decremented atomically with the check.
func (s *AssignmentService) Create(ctx context.Context, actorID string, req dto.CreateAssignmentRequest) (*models.AssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	status := models.AssignmentStatusPending
	if req.Status != nil {
		status = *req.Status
	}
	return s.place(ctx, actorID, req.StudentID, req.CourseID, status, false)
}

// OverrideAssign lets a professor place a student on their own course,
// bypassing the matching run. The assignment is confirmed immediately.
// An empty professorID skips the ownership check (admin acting as any
// professor).
func (s *AssignmentService) OverrideAssign(ctx context.Context, actorID, professorID, courseID, studentID string) (*models.AssignmentDetail, error) {
	if _, err := s.ownedCourse(ctx, courseID, professorID); err != nil {
		return nil, err
	}
	return s.place(ctx, actorID, studentID, courseID, models.AssignmentStatusConfirmed, true)
}

func (s *AssignmentService) place(ctx context.Context, actorID, studentID, courseID string, status models.AssignmentStatus, override bool) (*models.AssignmentDetail, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	taken, err := s.repo.ExistsByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing assignments")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already holds an assignment")
	}

	if err := s.courses.AdjustVacancies(ctx, courseID, -1); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "no vacancies remaining on this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve vacancy")
	}

	assignment := &models.Assignment{
		StudentID: studentID,
		CourseID:  courseID,
		Status:    status,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		if restoreErr := s.courses.AdjustVacancies(ctx, courseID, 1); restoreErr != nil {
			s.logger.Error("failed to restore vacancy after create failure",
				zap.String("course_id", courseID), zap.Error(restoreErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	s.recordAssignmentAudit(ctx, actorID, models.AuditActionAssignmentCreate, assignment, override)

	detail, err := s.loadDetail(ctx, assignment)
	if err != nil {
		s.logger.Warn("failed to load assignment detail", zap.String("assignment_id", assignment.ID), zap.Error(err))
		return &models.AssignmentDetail{Assignment: *assignment}, nil
	}
	return detail, nil
}

// Revoke removes an assignment and releases its vacancy back to the course.
func (s *AssignmentService) Revoke(ctx context.Context, actorID, assignmentID string) error {
	assignment, err := s.repo.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return s.remove(ctx, actorID, assignment)
}

// RemoveForCourse removes an assignment from a professor's own course.
// Assignments on other courses are reported as not found rather than
// forbidden, so course rosters stay opaque across professors.
func (s *AssignmentService) RemoveForCourse(ctx context.Context, actorID, professorID, courseID, assignmentID string) error {
	if _, err := s.ownedCourse(ctx, courseID, professorID); err != nil {
		return err
	}

	assignment, err := s.repo.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.CourseID != courseID {
		return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	return s.remove(ctx, actorID, assignment)
}

func (s *AssignmentService) remove(ctx context.Context, actorID string, assignment *models.Assignment) error {
	if err := s.repo.Delete(ctx, assignment.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}

	if err := s.courses.AdjustVacancies(ctx, assignment.CourseID, 1); err != nil {
		s.logger.Error("failed to restore vacancy after revocation",
			zap.String("course_id", assignment.CourseID),
			zap.String("assignment_id", assignment.ID),
			zap.Error(err))
	}

	s.recordAssignmentAudit(ctx, actorID, models.AuditActionAssignmentDelete, assignment, false)
	return nil
}

// Roster returns a professor's course roster after an ownership check.
func (s *AssignmentService) Roster(ctx context.Context, professorID, courseID string) (*dto.CourseRoster, error) {
	course, err := s.ownedCourse(ctx, courseID, professorID)
	if err != nil {
		return nil, err
	}
	details, err := s.ListDetails(ctx, models.AssignmentFilter{CourseID: courseID})
	if err != nil {
		return nil, err
	}
	return &dto.CourseRoster{Course: *course, Assignments: details}, nil
}

func (s *AssignmentService) ownedCourse(ctx context.Context, courseID, professorID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if professorID == "" {
		return course, nil
	}
	if course.ProfessorID == nil || *course.ProfessorID != professorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another professor")
	}
	return course, nil
}

func (s *AssignmentService) loadDetail(ctx context.Context, assignment *models.Assignment) (*models.AssignmentDetail, error) {
	details, err := s.repo.ListDetailsByIDs(ctx, []string{assignment.ID})
	if err != nil {
		return nil, err
	}
	if len(details) != 1 {
		return nil, fmt.Errorf("assignment %s detail row missing", assignment.ID)
	}
	return &details[0], nil
}

func (s *AssignmentService) recordAssignmentAudit(ctx context.Context, actorID, action string, assignment *models.Assignment, override bool) {
	if s.audit == nil {
		return
	}
	payload := fmt.Sprintf(`{"student_id":%q,"course_id":%q,"status":%q,"override":%t}`,
		assignment.StudentID, assignment.CourseID, assignment.Status, override)
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "assignments",
		ResourceID: &assignment.ID,
		NewValues:  []byte(payload),
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record assignment audit log", zap.Error(err))
	}
}
