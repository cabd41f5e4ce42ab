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

type preferenceStore interface {
	FindByID(ctx context.Context, id string) (*models.Preference, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.PreferenceDetail, error)
	ExistsForCourse(ctx context.Context, studentID, courseID, excludeID string) (bool, error)
	ExistsRank(ctx context.Context, studentID string, rank int, excludeID string) (bool, error)
	Create(ctx context.Context, pref *models.Preference) error
	ReplaceForStudent(ctx context.Context, studentID string, prefs []models.Preference) error
	Delete(ctx context.Context, id, studentID string) error
	ToggleHighlight(ctx context.Context, id string) (bool, error)
}

type preferenceCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// PreferenceService manages ranked course applications. Rank and course
// uniqueness are enforced in both write paths: bulk replacement validates
// the payload set, single adds check existing rows.
type PreferenceService struct {
	prefs     preferenceStore
	courses   preferenceCourseStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPreferenceService constructs the preference service.
func NewPreferenceService(prefs preferenceStore, courses preferenceCourseStore, validate *validator.Validate, logger *zap.Logger) *PreferenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceService{prefs: prefs, courses: courses, validator: validate, logger: logger}
}

// ListMine returns the student's preferences, most preferred first.
func (s *PreferenceService) ListMine(ctx context.Context, studentID string) ([]models.PreferenceDetail, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile attached to this account")
	}
	prefs, err := s.prefs.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}
	return prefs, nil
}

// Replace swaps the student's entire preference list. The payload must not
// repeat a course or a rank.
func (s *PreferenceService) Replace(ctx context.Context, studentID string, req dto.ReplacePreferencesRequest) ([]models.PreferenceDetail, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile attached to this account")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preferences payload")
	}

	seenCourses := make(map[string]struct{}, len(req.Preferences))
	seenRanks := make(map[int]struct{}, len(req.Preferences))
	for _, input := range req.Preferences {
		if _, dup := seenCourses[input.CourseID]; dup {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course %s appears more than once", input.CourseID))
		}
		if _, dup := seenRanks[input.Rank]; dup {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("rank %d appears more than once", input.Rank))
		}
		seenCourses[input.CourseID] = struct{}{}
		seenRanks[input.Rank] = struct{}{}

		if err := s.ensureCourseExists(ctx, input.CourseID); err != nil {
			return nil, err
		}
	}

	prefs := make([]models.Preference, 0, len(req.Preferences))
	for _, input := range req.Preferences {
		prefs = append(prefs, s.toModel(studentID, input))
	}
	if err := s.prefs.ReplaceForStudent(ctx, studentID, prefs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace preferences")
	}

	return s.ListMine(ctx, studentID)
}

// Add appends a single preference, rejecting duplicate courses and ranks
// against the stored set.
func (s *PreferenceService) Add(ctx context.Context, studentID string, req dto.PreferenceInput) (*models.Preference, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile attached to this account")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preference payload")
	}
	if err := s.ensureCourseExists(ctx, req.CourseID); err != nil {
		return nil, err
	}

	courseTaken, err := s.prefs.ExistsForCourse(ctx, studentID, req.CourseID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing preferences")
	}
	if courseTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a preference for this course already exists")
	}

	rankTaken, err := s.prefs.ExistsRank(ctx, studentID, req.Rank, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing ranks")
	}
	if rankTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("rank %d is already used", req.Rank))
	}

	pref := s.toModel(studentID, req)
	if err := s.prefs.Create(ctx, &pref); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create preference")
	}
	return &pref, nil
}

// Remove deletes the student's own preference.
func (s *PreferenceService) Remove(ctx context.Context, studentID, preferenceID string) error {
	if studentID == "" {
		return appErrors.Clone(appErrors.ErrForbidden, "no student profile attached to this account")
	}
	if err := s.prefs.Delete(ctx, preferenceID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "preference not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete preference")
	}
	return nil
}

// ToggleHighlight flips a professor's highlight on an application. The
// preference must belong to the given course.
func (s *PreferenceService) ToggleHighlight(ctx context.Context, courseID, preferenceID string) (bool, error) {
	pref, err := s.prefs.FindByID(ctx, preferenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "preference not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preference")
	}
	if pref.CourseID != courseID {
		return false, appErrors.Clone(appErrors.ErrNotFound, "preference does not belong to this course")
	}

	highlighted, err := s.prefs.ToggleHighlight(ctx, preferenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "preference not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle highlight")
	}
	return highlighted, nil
}

func (s *PreferenceService) ensureCourseExists(ctx context.Context, courseID string) error {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s not found", courseID))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return nil
}

func (s *PreferenceService) toModel(studentID string, input dto.PreferenceInput) models.Preference {
	return models.Preference{
		StudentID:          studentID,
		CourseID:           input.CourseID,
		Rank:               input.Rank,
		FacultyRequested:   input.FacultyRequested,
		GradeInCourse:      input.GradeInCourse,
		BasketGradeAverage: input.BasketGradeAverage,
		Notes:              input.Notes,
	}
}
