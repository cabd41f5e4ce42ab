package service

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

func engineForTest() *MatchingEngine {
	return NewMatchingEngine(nil, nil)
}

func applicant(id string, prefs ...models.Preference) models.StudentProfile {
	return models.StudentProfile{ID: id, UserID: "user-" + id, Preferences: prefs}
}

func prefFor(studentID, courseID string, rank int, grade *string) models.Preference {
	return models.Preference{
		ID:            "pref-" + studentID + "-" + courseID,
		StudentID:     studentID,
		CourseID:      courseID,
		Rank:          rank,
		GradeInCourse: grade,
	}
}

func TestMatchingEngineSelectsTopCandidates(t *testing.T) {
	snapshot := &MatchSnapshot{
		Courses: []models.Course{{ID: "c1", Code: "IEOR4004", Vacancies: 2}},
		Students: []models.StudentProfile{
			applicant("s1", prefFor("s1", "c1", 1, stringPtr("B"))),
			applicant("s2", prefFor("s2", "c1", 1, stringPtr("A"))),
			applicant("s3", prefFor("s3", "c1", 1, nil)),
		},
	}

	outcome := engineForTest().Run(snapshot)

	require.Len(t, outcome.Assignments, 2)
	assert.Equal(t, "s2", outcome.Assignments[0].StudentID)
	assert.Equal(t, "s1", outcome.Assignments[1].StudentID)
	for _, a := range outcome.Assignments {
		assert.Equal(t, "c1", a.CourseID)
		assert.Equal(t, models.AssignmentStatusPending, a.Status)
		assert.NotEmpty(t, a.ID)
	}
	assert.Equal(t, []string{"s3"}, outcome.Skipped)
	require.Len(t, outcome.Vacancies, 1)
	assert.Equal(t, CourseVacancy{CourseID: "c1", Remaining: 0}, outcome.Vacancies[0])
	assert.Equal(t, 0, snapshot.Courses[0].Vacancies)
}

func TestMatchingEngineConservesVacancies(t *testing.T) {
	snapshot := &MatchSnapshot{
		Courses: []models.Course{{ID: "c1", Vacancies: 5}},
		Students: []models.StudentProfile{
			applicant("s1", prefFor("s1", "c1", 1, nil)),
			applicant("s2", prefFor("s2", "c1", 2, nil)),
		},
	}

	outcome := engineForTest().Run(snapshot)

	// Two candidates for five slots: everyone placed, three slots left.
	require.Len(t, outcome.Assignments, 2)
	assert.Empty(t, outcome.Skipped)
	require.Len(t, outcome.Vacancies, 1)
	assert.Equal(t, 3, outcome.Vacancies[0].Remaining)
	assert.Equal(t, 5, len(outcome.Assignments)+outcome.Vacancies[0].Remaining)
}

func TestMatchingEngineSkipsFullCourses(t *testing.T) {
	snapshot := &MatchSnapshot{
		Courses: []models.Course{{ID: "c1", Vacancies: 2}},
		Students: []models.StudentProfile{
			applicant("s3", prefFor("s3", "c1", 1, stringPtr("A+"))),
		},
		Assignments: []models.Assignment{
			{ID: "a1", StudentID: "s1", CourseID: "c1"},
			{ID: "a2", StudentID: "s2", CourseID: "c1"},
		},
	}

	outcome := engineForTest().Run(snapshot)

	// A full course is not processed at all, so nobody is even skipped.
	assert.Empty(t, outcome.Assignments)
	assert.Empty(t, outcome.Skipped)
	assert.Empty(t, outcome.Vacancies)
	assert.Equal(t, 2, snapshot.Courses[0].Vacancies)
}

func TestMatchingEngineExcludesSameCourseAssignees(t *testing.T) {
	snapshot := &MatchSnapshot{
		Courses: []models.Course{
			{ID: "c1", Vacancies: 2},
			{ID: "c2", Vacancies: 1},
		},
		Students: []models.StudentProfile{
			applicant("s1",
				prefFor("s1", "c1", 1, stringPtr("A")),
				prefFor("s1", "c2", 2, stringPtr("A"))),
		},
		Assignments: []models.Assignment{
			{ID: "a1", StudentID: "s1", CourseID: "c1"},
		},
	}

	outcome := engineForTest().Run(snapshot)

	// Already on c1's roster, so only c2 considers the student.
	require.Len(t, outcome.Assignments, 1)
	assert.Equal(t, "c2", outcome.Assignments[0].CourseID)
	assert.Equal(t, "s1", outcome.Assignments[0].StudentID)
}

func TestMatchingEngineAllowsMultipleWinsPerRun(t *testing.T) {
	snapshot := &MatchSnapshot{
		Courses: []models.Course{
			{ID: "c1", Vacancies: 1},
			{ID: "c2", Vacancies: 1},
		},
		Students: []models.StudentProfile{
			applicant("s1",
				prefFor("s1", "c1", 1, stringPtr("A")),
				prefFor("s1", "c2", 2, stringPtr("A"))),
		},
	}

	outcome := engineForTest().Run(snapshot)

	// The run places the strongest candidate on every course they applied
	// to; the one-assignment rule binds the manual paths only.
	require.Len(t, outcome.Assignments, 2)
	assert.Equal(t, "c1", outcome.Assignments[0].CourseID)
	assert.Equal(t, "c2", outcome.Assignments[1].CourseID)
}

func TestMatchingEngineDeterministicOnFullTies(t *testing.T) {
	build := func() *MatchSnapshot {
		return &MatchSnapshot{
			Courses: []models.Course{{ID: "c1", Vacancies: 1}},
			Students: []models.StudentProfile{
				applicant("s1", prefFor("s1", "c1", 1, stringPtr("A"))),
				applicant("s2", prefFor("s2", "c1", 1, stringPtr("A"))),
			},
		}
	}

	for i := 0; i < 5; i++ {
		outcome := engineForTest().Run(build())
		require.Len(t, outcome.Assignments, 1)
		// Stable sort: the earlier snapshot row wins a full tie every time.
		assert.Equal(t, "s1", outcome.Assignments[0].StudentID)
		assert.Equal(t, []string{"s2"}, outcome.Skipped)
	}
}

func TestMatchingEngineSkippedFollowsCourseOrder(t *testing.T) {
	snapshot := &MatchSnapshot{
		Courses: []models.Course{
			{ID: "c1", Vacancies: 1},
			{ID: "c2", Vacancies: 1},
		},
		Students: []models.StudentProfile{
			applicant("s1", prefFor("s1", "c1", 1, stringPtr("A"))),
			applicant("s2",
				prefFor("s2", "c1", 1, stringPtr("B")),
				prefFor("s2", "c2", 2, stringPtr("B"))),
			applicant("s3", prefFor("s3", "c2", 1, stringPtr("A"))),
		},
	}

	outcome := engineForTest().Run(snapshot)

	// s2 loses c1 to s1, then loses c2 to s3: one skip entry per pass.
	require.Len(t, outcome.Assignments, 2)
	assert.Equal(t, "s1", outcome.Assignments[0].StudentID)
	assert.Equal(t, "s3", outcome.Assignments[1].StudentID)
	assert.Equal(t, []string{"s2", "s2"}, outcome.Skipped)
}

func TestMatchingEngineNilSnapshot(t *testing.T) {
	outcome := engineForTest().Run(nil)
	require.NotNil(t, outcome)
	assert.Empty(t, outcome.Assignments)
	assert.Empty(t, outcome.Skipped)
	assert.Empty(t, outcome.Vacancies)
}

type mockMatchingCourses struct {
	courses []models.Course
	updated map[string]int
}

func (m *mockMatchingCourses) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	if len(filter.IDs) == 0 {
		return append([]models.Course(nil), m.courses...), nil
	}
	var out []models.Course
	for _, c := range m.courses {
		for _, id := range filter.IDs {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (m *mockMatchingCourses) UpdateVacanciesWithTx(ctx context.Context, tx *sqlx.Tx, id string, vacancies int) error {
	if m.updated == nil {
		m.updated = make(map[string]int)
	}
	m.updated[id] = vacancies
	return nil
}

type mockMatchingPreferences struct {
	prefs []models.Preference
}

func (m *mockMatchingPreferences) ListByCourseIDs(ctx context.Context, courseIDs []string) ([]models.Preference, error) {
	return m.prefs, nil
}

type mockMatchingStudents struct {
	profiles []models.StudentProfile
}

func (m *mockMatchingStudents) ListByIDs(ctx context.Context, ids []string) ([]models.StudentProfile, error) {
	var out []models.StudentProfile
	for _, id := range ids {
		for _, p := range m.profiles {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type mockMatchingAssignments struct {
	existing  []models.Assignment
	created   []models.Assignment
	createErr error
}

func (m *mockMatchingAssignments) ListByCourseIDs(ctx context.Context, courseIDs []string) ([]models.Assignment, error) {
	return m.existing, nil
}

func (m *mockMatchingAssignments) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, assignments []models.Assignment) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, assignments...)
	return nil
}

func (m *mockMatchingAssignments) ListDetailsByIDs(ctx context.Context, ids []string) ([]models.AssignmentDetail, error) {
	var out []models.AssignmentDetail
	for _, id := range ids {
		for _, a := range m.created {
			if a.ID == id {
				out = append(out, models.AssignmentDetail{
					Assignment: a,
					StudentUNI: "uni-" + a.StudentID,
					CourseCode: "code-" + a.CourseID,
				})
			}
		}
	}
	return out, nil
}

type stubMatchingFeedback struct {
	entries []models.InstructorFeedback
}

func (s *stubMatchingFeedback) ListByStudentIDs(ctx context.Context, studentIDs []string) ([]models.InstructorFeedback, error) {
	return s.entries, nil
}

type matchingServiceFixture struct {
	svc         *MatchingService
	courses     *mockMatchingCourses
	assignments *mockMatchingAssignments
	audit       *mockCourseAudit
	mock        sqlmock.Sqlmock
	cleanup     func()
}

func newMatchingServiceForTest(t *testing.T, courses []models.Course, prefs []models.Preference, profiles []models.StudentProfile, existing []models.Assignment) *matchingServiceFixture {
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(rawDB, "sqlmock")

	courseRepo := &mockMatchingCourses{courses: courses}
	assignmentRepo := &mockMatchingAssignments{existing: existing}
	audit := &mockCourseAudit{}
	svc := NewMatchingService(
		db,
		courseRepo,
		&mockMatchingPreferences{prefs: prefs},
		&mockMatchingStudents{profiles: profiles},
		assignmentRepo,
		&stubMatchingFeedback{},
		audit,
		nil, nil, nil, nil, nil,
	)
	return &matchingServiceFixture{
		svc:         svc,
		courses:     courseRepo,
		assignments: assignmentRepo,
		audit:       audit,
		mock:        mock,
		cleanup:     func() { rawDB.Close() },
	}
}

func TestMatchingServiceRunPersistsOutcome(t *testing.T) {
	courses := []models.Course{
		{ID: "c1", Code: "IEOR4004", Vacancies: 1},
		{ID: "c2", Code: "IEOR4525", Vacancies: 1},
	}
	prefs := []models.Preference{
		prefFor("s1", "c1", 1, stringPtr("A")),
		prefFor("s2", "c1", 1, stringPtr("B")),
		prefFor("s2", "c2", 2, stringPtr("B")),
	}
	profiles := []models.StudentProfile{
		{ID: "s1", UserID: "u1"},
		{ID: "s2", UserID: "u2"},
	}
	f := newMatchingServiceForTest(t, courses, prefs, profiles, nil)
	defer f.cleanup()

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.Run(context.Background(), "admin-1", dto.MatchRequest{})
	require.NoError(t, err)

	// s1 wins c1 on grade; s2 is skipped there but lands c2 unopposed.
	require.Len(t, result.Assignments, 2)
	assert.Equal(t, "uni-s1", result.Assignments[0].StudentUNI)
	assert.Equal(t, "code-c1", result.Assignments[0].CourseCode)
	assert.Equal(t, "uni-s2", result.Assignments[1].StudentUNI)
	assert.Equal(t, []string{"s2"}, result.SkippedStudents)

	require.Len(t, f.assignments.created, 2)
	assert.Equal(t, map[string]int{"c1": 0, "c2": 0}, f.courses.updated)

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionMatchRun, f.audit.logs[0].Action)
	require.NotNil(t, f.audit.logs[0].UserID)
	assert.Equal(t, "admin-1", *f.audit.logs[0].UserID)
	assert.Contains(t, string(f.audit.logs[0].NewValues), `"created":2`)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMatchingServiceRunNothingToPlace(t *testing.T) {
	courses := []models.Course{{ID: "c1", Code: "IEOR4004", Vacancies: 1}}
	prefs := []models.Preference{prefFor("s1", "c1", 1, nil)}
	profiles := []models.StudentProfile{{ID: "s1", UserID: "u1"}}
	existing := []models.Assignment{{ID: "a1", StudentID: "s9", CourseID: "c1"}}

	f := newMatchingServiceForTest(t, courses, prefs, profiles, existing)
	defer f.cleanup()

	// No transaction expectations: an empty outcome never opens one.
	result, err := f.svc.Run(context.Background(), "admin-1", dto.MatchRequest{})
	require.NoError(t, err)
	assert.Empty(t, result.Assignments)
	assert.Empty(t, result.SkippedStudents)
	assert.Empty(t, f.assignments.created)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMatchingServiceRunIsIdempotent(t *testing.T) {
	courses := []models.Course{{ID: "c1", Code: "IEOR4004", Vacancies: 2}}
	prefs := []models.Preference{prefFor("s1", "c1", 1, stringPtr("A"))}
	profiles := []models.StudentProfile{{ID: "s1", UserID: "u1"}}

	f := newMatchingServiceForTest(t, courses, prefs, profiles, nil)
	defer f.cleanup()

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	first, err := f.svc.Run(context.Background(), "admin-1", dto.MatchRequest{})
	require.NoError(t, err)
	require.Len(t, first.Assignments, 1)

	// Feed the persisted state back in the way a reload would.
	f.assignments.existing = append(f.assignments.existing, f.assignments.created...)
	f.courses.courses[0].Vacancies = f.courses.updated["c1"]

	second, err := f.svc.Run(context.Background(), "admin-1", dto.MatchRequest{})
	require.NoError(t, err)
	assert.Empty(t, second.Assignments)
	assert.Empty(t, second.SkippedStudents)
	require.Len(t, f.assignments.created, 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMatchingServiceRunCourseFilter(t *testing.T) {
	courses := []models.Course{
		{ID: "c1", Code: "IEOR4004", Vacancies: 1},
		{ID: "c2", Code: "IEOR4525", Vacancies: 1},
	}
	prefs := []models.Preference{
		prefFor("s1", "c1", 1, stringPtr("A")),
		prefFor("s1", "c2", 2, stringPtr("A")),
	}
	profiles := []models.StudentProfile{{ID: "s1", UserID: "u1"}}

	f := newMatchingServiceForTest(t, courses, prefs, profiles, nil)
	defer f.cleanup()

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.Run(context.Background(), "admin-1", dto.MatchRequest{CourseIDs: []string{"c2"}})
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "code-c2", result.Assignments[0].CourseCode)
	assert.Equal(t, map[string]int{"c2": 0}, f.courses.updated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMatchingServiceRunInvalidRequest(t *testing.T) {
	f := newMatchingServiceForTest(t, nil, nil, nil, nil)
	defer f.cleanup()

	_, err := f.svc.Run(context.Background(), "admin-1", dto.MatchRequest{CourseIDs: []string{""}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestMatchingServiceRunConcurrentConflictRollsBack(t *testing.T) {
	courses := []models.Course{{ID: "c1", Code: "IEOR4004", Vacancies: 1}}
	prefs := []models.Preference{prefFor("s1", "c1", 1, stringPtr("A"))}
	profiles := []models.StudentProfile{{ID: "s1", UserID: "u1"}}

	f := newMatchingServiceForTest(t, courses, prefs, profiles, nil)
	defer f.cleanup()
	f.assignments.createErr = &pq.Error{Code: "23505"}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Run(context.Background(), "admin-1", dto.MatchRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, f.courses.updated)
	assert.Empty(t, f.audit.logs)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
