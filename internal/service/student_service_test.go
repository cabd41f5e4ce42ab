package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

type mockProfileStore struct {
	profiles   map[string]*models.StudentProfile
	updated    []*models.StudentProfile
	searched   []models.StudentFilter
	searchHits []models.StudentSummary
}

func (m *mockProfileStore) FindByID(ctx context.Context, id string) (*models.StudentProfile, error) {
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProfileStore) Update(ctx context.Context, profile *models.StudentProfile) error {
	m.updated = append(m.updated, profile)
	return nil
}

func (m *mockProfileStore) Search(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, error) {
	m.searched = append(m.searched, filter)
	return m.searchHits, nil
}

type mockPreferenceLister struct {
	prefs []models.PreferenceDetail
	err   error
}

func (m *mockPreferenceLister) ListByStudent(ctx context.Context, studentID string) ([]models.PreferenceDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.prefs, nil
}

type mockCourseCatalog struct {
	courses []models.Course
	filters []models.CourseFilter
}

func (m *mockCourseCatalog) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	m.filters = append(m.filters, filter)
	return m.courses, nil
}

func newTestStudentService(profiles *mockProfileStore, prefs *mockPreferenceLister, catalog *mockCourseCatalog) *StudentService {
	return NewStudentService(profiles, prefs, catalog, validator.New(), zap.NewNop())
}

func strPtr(s string) *string { return &s }

func TestStudentServiceMe(t *testing.T) {
	profiles := &mockProfileStore{profiles: map[string]*models.StudentProfile{
		"sp1": {ID: "sp1", UserID: "u1", FullName: strPtr("Jane Doe")},
	}}
	prefs := &mockPreferenceLister{prefs: []models.PreferenceDetail{{Preference: models.Preference{ID: "p1", StudentID: "sp1", Rank: 1}}}}
	svc := newTestStudentService(profiles, prefs, &mockCourseCatalog{})

	res, err := svc.Me(context.Background(), "sp1")
	require.NoError(t, err)
	assert.Equal(t, "sp1", res.Profile.ID)
	require.Len(t, res.Preferences, 1)
	assert.Equal(t, "p1", res.Preferences[0].ID)
}

func TestStudentServiceMeWithoutProfile(t *testing.T) {
	svc := newTestStudentService(&mockProfileStore{}, &mockPreferenceLister{}, &mockCourseCatalog{})

	_, err := svc.Me(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Me(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceUpdateMePartial(t *testing.T) {
	level := models.StudyLevelMasters
	profiles := &mockProfileStore{profiles: map[string]*models.StudentProfile{
		"sp1": {ID: "sp1", FullName: strPtr("Old Name"), Interests: strPtr("Optimization")},
	}}
	svc := newTestStudentService(profiles, &mockPreferenceLister{}, &mockCourseCatalog{})

	updated, err := svc.UpdateMe(context.Background(), "sp1", dto.UpdateStudentProfileRequest{
		FullName:     strPtr("New Name"),
		LevelOfStudy: &level,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.FullName)
	assert.Equal(t, "New Name", *updated.FullName)
	require.NotNil(t, updated.LevelOfStudy)
	assert.Equal(t, models.StudyLevelMasters, *updated.LevelOfStudy)
	// Untouched fields survive.
	require.NotNil(t, updated.Interests)
	assert.Equal(t, "Optimization", *updated.Interests)
	require.Len(t, profiles.updated, 1)
}

func TestStudentServiceUpdateMeInvalidLevel(t *testing.T) {
	bogus := models.StudyLevel("doctoral")
	profiles := &mockProfileStore{profiles: map[string]*models.StudentProfile{"sp1": {ID: "sp1"}}}
	svc := newTestStudentService(profiles, &mockPreferenceLister{}, &mockCourseCatalog{})

	_, err := svc.UpdateMe(context.Background(), "sp1", dto.UpdateStudentProfileRequest{LevelOfStudy: &bogus})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, profiles.updated)
}

func TestStudentServiceCatalog(t *testing.T) {
	catalog := &mockCourseCatalog{courses: []models.Course{{ID: "c1", Code: "IEOR E4004"}}}
	svc := newTestStudentService(&mockProfileStore{}, &mockPreferenceLister{}, catalog)

	track := models.TrackOptimization
	courses, err := svc.Catalog(context.Background(), models.CourseFilter{Track: &track})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "IEOR E4004", courses[0].Code)

	require.Len(t, catalog.filters, 1)
	require.NotNil(t, catalog.filters[0].Track)
	assert.Equal(t, models.TrackOptimization, *catalog.filters[0].Track)
}

func TestStudentServiceSearchCandidates(t *testing.T) {
	profiles := &mockProfileStore{searchHits: []models.StudentSummary{{ID: "sp1", UNI: "jd2451"}}}
	svc := newTestStudentService(profiles, &mockPreferenceLister{}, &mockCourseCatalog{})

	results, err := svc.SearchCandidates(context.Background(), "  jane ")
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.Len(t, profiles.searched, 1)
	assert.Equal(t, "jane", profiles.searched[0].Search)
	assert.Equal(t, 20, profiles.searched[0].Limit)
}

func TestStudentServiceSearchCandidatesShortQuery(t *testing.T) {
	svc := newTestStudentService(&mockProfileStore{}, &mockPreferenceLister{}, &mockCourseCatalog{})

	_, err := svc.SearchCandidates(context.Background(), " a ")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
