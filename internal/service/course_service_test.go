package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

type mockCourseStore struct {
	courses  map[string]*models.Course
	upserted []models.Course
	deleted  []string
	nextID   int
}

func newMockCourseStore() *mockCourseStore {
	return &mockCourseStore{courses: make(map[string]*models.Course)}
}

func (m *mockCourseStore) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	var out []models.Course
	for _, c := range m.courses {
		if filter.ProfessorID != "" && (c.ProfessorID == nil || *c.ProfessorID != filter.ProfessorID) {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCourseStore) ListWithCounts(ctx context.Context, filter models.CourseFilter) ([]models.CourseWithCounts, error) {
	courses, _ := m.List(ctx, filter)
	out := make([]models.CourseWithCounts, 0, len(courses))
	for _, c := range courses {
		out = append(out, models.CourseWithCounts{Course: c})
	}
	return out, nil
}

func (m *mockCourseStore) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *course
	return &copied, nil
}

func (m *mockCourseStore) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	for _, c := range m.courses {
		if strings.EqualFold(c.Code, code) && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCourseStore) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		m.nextID++
		course.ID = fmt.Sprintf("course-%d", m.nextID)
	}
	copied := *course
	m.courses[course.ID] = &copied
	return nil
}

func (m *mockCourseStore) Update(ctx context.Context, course *models.Course) error {
	if _, ok := m.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *course
	m.courses[course.ID] = &copied
	return nil
}

func (m *mockCourseStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.courses, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockCourseStore) BulkUpsertByCode(ctx context.Context, courses []models.Course) error {
	m.upserted = append(m.upserted, courses...)
	return nil
}

type stubCourseApplications struct {
	apps []models.ApplicationDetail
	err  error
}

func (s *stubCourseApplications) ListByCourse(ctx context.Context, courseID string) ([]models.ApplicationDetail, error) {
	return s.apps, s.err
}

type stubCourseAssignments struct {
	roster []models.Assignment
}

func (s *stubCourseAssignments) ListByCourseIDs(ctx context.Context, courseIDs []string) ([]models.Assignment, error) {
	return s.roster, nil
}

type stubCourseStudents struct {
	profiles []models.StudentProfile
}

func (s *stubCourseStudents) ListByIDs(ctx context.Context, ids []string) ([]models.StudentProfile, error) {
	return s.profiles, nil
}

type stubCourseFeedback struct {
	entries []models.InstructorFeedback
}

func (s *stubCourseFeedback) ListByStudentIDs(ctx context.Context, studentIDs []string) ([]models.InstructorFeedback, error) {
	return s.entries, nil
}

type mockCourseAudit struct {
	logs []models.AuditLog
}

func (m *mockCourseAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func newCourseServiceForTest(store *mockCourseStore) (*CourseService, *mockCourseAudit) {
	audit := &mockCourseAudit{}
	svc := NewCourseService(store, &stubCourseApplications{}, &stubCourseAssignments{}, &stubCourseStudents{}, &stubCourseFeedback{}, nil, audit, nil, nil)
	return svc, audit
}

func stringPtr(s string) *string { return &s }

func TestCourseServiceCreate(t *testing.T) {
	store := newMockCourseStore()
	svc, _ := newCourseServiceForTest(store)

	course, err := svc.Create(context.Background(), dto.CreateCourseRequest{
		Code:      "  IEOR4500 ",
		Title:     "Applications Programming",
		Track:     stringPtr("optimization"),
		Vacancies: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "IEOR4500", course.Code)
	require.NotNil(t, course.Track)
	assert.Equal(t, models.TrackOptimization, *course.Track)
	assert.NotEmpty(t, course.ID)
}

func TestCourseServiceCreateDuplicateCode(t *testing.T) {
	store := newMockCourseStore()
	store.courses["c1"] = &models.Course{ID: "c1", Code: "IEOR4500", Title: "Existing"}
	svc, _ := newCourseServiceForTest(store)

	_, err := svc.Create(context.Background(), dto.CreateCourseRequest{Code: "ieor4500", Title: "Clone"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCourseServiceCreateUnknownTrack(t *testing.T) {
	store := newMockCourseStore()
	svc, _ := newCourseServiceForTest(store)

	_, err := svc.Create(context.Background(), dto.CreateCourseRequest{
		Code:  "IEOR4500",
		Title: "Applications Programming",
		Track: stringPtr("underwater weaving"),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCourseServiceUpdate(t *testing.T) {
	store := newMockCourseStore()
	store.courses["c1"] = &models.Course{ID: "c1", Code: "IEOR4500", Title: "Old Title", Vacancies: 1}
	svc, _ := newCourseServiceForTest(store)

	course, err := svc.Update(context.Background(), "c1", dto.UpdateCourseRequest{
		Code:      "IEOR4500",
		Title:     "New Title",
		Vacancies: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "New Title", course.Title)
	assert.Equal(t, 5, course.Vacancies)
	assert.Equal(t, "New Title", store.courses["c1"].Title)
}

func TestCourseServiceUpdateNotFound(t *testing.T) {
	store := newMockCourseStore()
	svc, _ := newCourseServiceForTest(store)

	_, err := svc.Update(context.Background(), "missing", dto.UpdateCourseRequest{Code: "X1", Title: "T"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestCourseServiceUpdateCodeConflict(t *testing.T) {
	store := newMockCourseStore()
	store.courses["c1"] = &models.Course{ID: "c1", Code: "IEOR4500", Title: "One"}
	store.courses["c2"] = &models.Course{ID: "c2", Code: "IEOR4501", Title: "Two"}
	svc, _ := newCourseServiceForTest(store)

	_, err := svc.Update(context.Background(), "c2", dto.UpdateCourseRequest{Code: "IEOR4500", Title: "Two"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCourseServiceDeleteNotFound(t *testing.T) {
	store := newMockCourseStore()
	svc, _ := newCourseServiceForTest(store)

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestCourseServiceImportCSV(t *testing.T) {
	store := newMockCourseStore()
	svc, audit := newCourseServiceForTest(store)

	csvBody := strings.Join([]string{
		"code,title,instructor,instructor_email,track,vacancies,grade_threshold,similar_courses",
		"IEOR4500,Applications Programming,Prof. Stone,stone@university.edu,Optimization,3,B+,IEOR4501",
		"IEOR4501,Tools for Analytics,,,Machine Learning & Analytics,2,,",
		",Missing Code,,,,,,",
		"IEOR4739,Bad Vacancies,,,,many,,",
		"IEOR4742,Unknown Track,,,Underwater Weaving,1,,",
		"IEOR4500,Duplicate Row,,,,1,,",
	}, "\n")

	result, err := svc.ImportCSV(context.Background(), "admin-1", strings.NewReader(csvBody))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	require.Len(t, result.Errors, 4)
	assert.Equal(t, 4, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Error, "course code is required")
	assert.Equal(t, 5, result.Errors[1].Row)
	assert.Contains(t, result.Errors[1].Error, "invalid vacancies")
	assert.Equal(t, 6, result.Errors[2].Row)
	assert.Contains(t, result.Errors[2].Error, "unknown track")
	assert.Equal(t, 7, result.Errors[3].Row)
	assert.Contains(t, result.Errors[3].Error, "duplicate of row 2")

	require.Len(t, store.upserted, 2)
	first := store.upserted[0]
	assert.Equal(t, "IEOR4500", first.Code)
	require.NotNil(t, first.Track)
	assert.Equal(t, models.TrackOptimization, *first.Track)
	assert.Equal(t, 3, first.Vacancies)
	require.NotNil(t, first.InstructorEmail)
	assert.Equal(t, "stone@university.edu", *first.InstructorEmail)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionCourseImport, audit.logs[0].Action)
	assert.Contains(t, string(audit.logs[0].NewValues), `"imported":2`)
}

func TestCourseServiceImportCSVWithoutHeader(t *testing.T) {
	store := newMockCourseStore()
	svc, _ := newCourseServiceForTest(store)

	result, err := svc.ImportCSV(context.Background(), "admin-1", strings.NewReader("IEOR4500,Applications Programming,,,,2,,\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Empty(t, result.Errors)
}

func TestCourseServiceEnsureOwned(t *testing.T) {
	store := newMockCourseStore()
	store.courses["c1"] = &models.Course{ID: "c1", Code: "IEOR4500", Title: "T", ProfessorID: stringPtr("prof-1")}
	svc, _ := newCourseServiceForTest(store)

	course, err := svc.EnsureOwned(context.Background(), "c1", "prof-1")
	require.NoError(t, err)
	assert.Equal(t, "c1", course.ID)

	_, err = svc.EnsureOwned(context.Background(), "c1", "prof-2")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	course, err = svc.EnsureOwned(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.Equal(t, "c1", course.ID)
}

func TestCourseServiceOwnedCourseIDs(t *testing.T) {
	store := newMockCourseStore()
	store.courses["c1"] = &models.Course{ID: "c1", Code: "A1", Title: "T", ProfessorID: stringPtr("prof-1")}
	store.courses["c2"] = &models.Course{ID: "c2", Code: "A2", Title: "T", ProfessorID: stringPtr("prof-2")}
	svc, _ := newCourseServiceForTest(store)

	ids, err := svc.OwnedCourseIDs(context.Background(), "prof-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func TestCourseServiceApplications(t *testing.T) {
	store := newMockCourseStore()
	track := models.TrackOptimization
	store.courses["c1"] = &models.Course{
		ID:        "c1",
		Code:      "IEOR4500",
		Title:     "Applications Programming",
		Track:     &track,
		Vacancies: 2,
	}

	apps := &stubCourseApplications{apps: []models.ApplicationDetail{
		{
			Preference: models.Preference{
				ID: "p1", StudentID: "s1", CourseID: "c1",
				Rank: 1, FacultyRequested: true, GradeInCourse: stringPtr("A"),
			},
			StudentUNI:   "jd2451",
			StudentEmail: "jane@university.edu",
		},
		{
			Preference: models.Preference{
				ID: "p2", StudentID: "s2", CourseID: "c1", Rank: 2,
			},
			StudentUNI:   "mk3001",
			StudentEmail: "mark@university.edu",
		},
	}}
	students := &stubCourseStudents{profiles: []models.StudentProfile{
		{ID: "s1", UserID: "u1", Interests: stringPtr("Optimization, Operations")},
		{ID: "s2", UserID: "u2"},
	}}
	roster := &stubCourseAssignments{roster: []models.Assignment{
		{ID: "a1", StudentID: "s1", CourseID: "c1", Status: models.AssignmentStatusConfirmed},
	}}

	svc := NewCourseService(store, apps, roster, students, &stubCourseFeedback{}, nil, &mockCourseAudit{}, nil, nil)

	out, err := svc.Applications(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "s1", out[0].StudentID)
	assert.True(t, out[0].Assigned)
	assert.False(t, out[1].Assigned)
	assert.Greater(t, out[0].Score.Composite, out[1].Score.Composite)
}

func TestCourseServiceApplicationsEmpty(t *testing.T) {
	store := newMockCourseStore()
	store.courses["c1"] = &models.Course{ID: "c1", Code: "IEOR4500", Title: "T"}
	svc, _ := newCourseServiceForTest(store)

	out, err := svc.Applications(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, out)
}
