package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

type studentProfileStore interface {
	FindByID(ctx context.Context, id string) (*models.StudentProfile, error)
	Update(ctx context.Context, profile *models.StudentProfile) error
	Search(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, error)
}

type studentPreferenceLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.PreferenceDetail, error)
}

type studentCourseCatalog interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
}

// StudentService covers the candidate-facing profile and catalog use cases
// plus the professor-facing candidate search.
type StudentService struct {
	profiles    studentProfileStore
	preferences studentPreferenceLister
	courses     studentCourseCatalog
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(profiles studentProfileStore, preferences studentPreferenceLister, courses studentCourseCatalog, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{profiles: profiles, preferences: preferences, courses: courses, validator: validate, logger: logger}
}

// Me returns the candidate's profile with their current preferences.
func (s *StudentService) Me(ctx context.Context, profileID string) (*dto.StudentProfileResponse, error) {
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	prefs, err := s.preferences.ListByStudent(ctx, profileID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}
	return &dto.StudentProfileResponse{Profile: *profile, Preferences: prefs}, nil
}

// UpdateMe applies the provided profile fields; nil fields are untouched.
func (s *StudentService) UpdateMe(ctx context.Context, profileID string, req dto.UpdateStudentProfileRequest) (*models.StudentProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		profile.FullName = req.FullName
	}
	if req.DegreeProgram != nil {
		profile.DegreeProgram = req.DegreeProgram
	}
	if req.LevelOfStudy != nil {
		profile.LevelOfStudy = req.LevelOfStudy
	}
	if req.Interests != nil {
		profile.Interests = req.Interests
	}
	if req.PhotoURL != nil {
		profile.PhotoURL = req.PhotoURL
	}

	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return profile, nil
}

// Catalog lists courses for application browsing.
func (s *StudentService) Catalog(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	courses, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// SearchCandidates performs the professor-facing name/UNI/email lookup.
// Queries shorter than two characters are rejected; results cap at 20.
func (s *StudentService) SearchCandidates(ctx context.Context, query string) ([]models.StudentSummary, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "query must be at least 2 characters")
	}
	results, err := s.profiles.Search(ctx, models.StudentFilter{Search: query, Limit: 20})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search students")
	}
	return results, nil
}

func (s *StudentService) loadProfile(ctx context.Context, profileID string) (*models.StudentProfile, error) {
	if profileID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile attached to this account")
	}
	profile, err := s.profiles.FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}
