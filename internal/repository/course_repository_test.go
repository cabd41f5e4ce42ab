package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camatch/camatch-api/internal/models"
)

func newCourseMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func courseRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "code", "title", "instructor", "instructor_email", "professor_id", "track",
		"vacancies", "grade_threshold", "similar_courses", "competency_matrix", "created_at", "updated_at",
	})
}

func TestCourseRepositoryListNoFilter(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE 1=1 ORDER BY code ASC, id ASC")).
		WillReturnRows(courseRows().
			AddRow("c1", "IEOR E4004", "Optimization Models", "A. Prof", nil, nil, "Optimization", 3, "A-", nil, nil, now, now).
			AddRow("c2", "IEOR E4650", "Business Analytics", nil, nil, nil, nil, 1, nil, nil, nil, now, now))

	courses, err := repo.List(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "IEOR E4004", courses[0].Code)
	require.NotNil(t, courses[0].Track)
	assert.Equal(t, models.TrackOptimization, *courses[0].Track)
	assert.Nil(t, courses[1].Track)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListTrackAndSearch(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND track = $1 AND (LOWER(code) LIKE $2 OR LOWER(title) LIKE $2) ORDER BY code ASC, id ASC")).
		WithArgs(models.TrackOptimization, "%e4004%").
		WillReturnRows(courseRows().
			AddRow("c1", "IEOR E4004", "Optimization Models", nil, nil, nil, "Optimization", 2, nil, nil, nil, now, now))

	track := models.TrackOptimization
	courses, err := repo.List(context.Background(), models.CourseFilter{Track: &track, Search: "E4004"})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "c1", courses[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListWithCounts(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "code", "title", "instructor", "instructor_email", "professor_id", "track",
		"vacancies", "grade_threshold", "similar_courses", "competency_matrix", "created_at", "updated_at",
		"application_count", "assignment_count",
	}).
		AddRow("c1", "IEOR E4004", "Optimization Models", nil, nil, nil, nil, 3, nil, nil, nil, now, now, 12, 2).
		AddRow("c2", "IEOR E4650", "Business Analytics", nil, nil, nil, nil, 1, nil, nil, nil, now, now, 0, 0)
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(p.cnt, 0) AS application_count")).WillReturnRows(rows)

	courses, err := repo.ListWithCounts(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, 12, courses[0].ApplicationCount)
	assert.Equal(t, 2, courses[0].AssignmentCount)
	assert.Zero(t, courses[1].ApplicationCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryFindByCode(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE LOWER(code) = LOWER($1)")).
		WithArgs("ieor e4004").
		WillReturnRows(courseRows().
			AddRow("c1", "IEOR E4004", "Optimization Models", nil, nil, nil, nil, 2, nil, nil, nil, now, now))

	course, err := repo.FindByCode(context.Background(), "ieor e4004")
	require.NoError(t, err)
	assert.Equal(t, "c1", course.ID)
	assert.Equal(t, "IEOR E4004", course.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM courses WHERE LOWER(code) = LOWER($1) LIMIT 1")).
		WithArgs("IEOR E4004").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsByCode(context.Background(), "IEOR E4004", "")
	require.NoError(t, err)
	assert.False(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM courses WHERE LOWER(code) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("IEOR E4004", "c9").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err = repo.ExistsByCode(context.Background(), "IEOR E4004", "c9")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET code = ")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Course{ID: "missing", Code: "IEOR E0000", Title: "Ghost"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryAdjustVacancies(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET vacancies = vacancies + $2, updated_at = $3 WHERE id = $1")).
		WithArgs("c1", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AdjustVacancies(context.Background(), "c1", 1))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET vacancies = vacancies + $2, updated_at = $3 WHERE id = $1 AND vacancies >= $4")).
		WithArgs("c1", -1, sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.AdjustVacancies(context.Background(), "c1", -1)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryBulkUpsertByCode(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	require.NoError(t, repo.BulkUpsertByCode(context.Background(), nil))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (code) DO UPDATE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (code) DO UPDATE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	courses := []models.Course{
		{Code: "IEOR E4004", Title: "Optimization Models", Vacancies: 2},
		{Code: "IEOR E4650", Title: "Business Analytics", Vacancies: 1},
	}
	require.NoError(t, repo.BulkUpsertByCode(context.Background(), courses))
	assert.NotEmpty(t, courses[0].ID)
	assert.NotEmpty(t, courses[1].ID)
	assert.False(t, courses[0].UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
