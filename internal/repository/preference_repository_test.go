package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camatch/camatch-api/internal/models"
)

func newPrefMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestPreferenceRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newPrefMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "course_id", "rank", "faculty_requested", "grade_in_course",
		"basket_grade_average", "highlighted", "notes", "created_at", "updated_at",
		"course_code", "course_title",
	}).
		AddRow("p1", "sp1", "c1", 1, true, "A", nil, false, nil, now, now, "IEOR E4004", "Optimization Models").
		AddRow("p2", "sp1", "c2", 2, false, nil, "B+", true, nil, now, now, "IEOR E4525", "Machine Learning")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.student_id = $1")).
		WithArgs("sp1").
		WillReturnRows(rows)

	prefs, err := repo.ListByStudent(context.Background(), "sp1")
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, 1, prefs[0].Rank)
	assert.Equal(t, "IEOR E4004", prefs[0].CourseCode)
	assert.True(t, prefs[1].Highlighted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepositoryExistsForCourse(t *testing.T) {
	db, mock, cleanup := newPrefMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM preferences WHERE student_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("sp1", "c1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsForCourse(context.Background(), "sp1", "c1", "")
	require.NoError(t, err)
	assert.False(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM preferences WHERE student_id = $1 AND course_id = $2 AND id <> $3 LIMIT 1")).
		WithArgs("sp1", "c1", "p9").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err = repo.ExistsForCourse(context.Background(), "sp1", "c1", "p9")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newPrefMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	mock.ExpectExec("INSERT INTO preferences").
		WillReturnResult(sqlmock.NewResult(1, 1))

	pref := &models.Preference{StudentID: "sp1", CourseID: "c1", Rank: 1}
	require.NoError(t, repo.Create(context.Background(), pref))
	assert.NotEmpty(t, pref.ID)
	assert.False(t, pref.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepositoryReplaceForStudent(t *testing.T) {
	db, mock, cleanup := newPrefMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM preferences WHERE student_id = $1")).
		WithArgs("sp1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO preferences").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO preferences").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	prefs := []models.Preference{
		{CourseID: "c1", Rank: 1},
		{CourseID: "c2", Rank: 2},
	}
	require.NoError(t, repo.ReplaceForStudent(context.Background(), "sp1", prefs))
	assert.Equal(t, "sp1", prefs[0].StudentID)
	assert.NotEmpty(t, prefs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newPrefMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM preferences WHERE id = $1 AND student_id = $2")).
		WithArgs("p1", "sp1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "p1", "sp1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepositoryToggleHighlight(t *testing.T) {
	db, mock, cleanup := newPrefMock(t)
	defer cleanup()
	repo := NewPreferenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE preferences SET highlighted = NOT highlighted, updated_at = $2 WHERE id = $1 RETURNING highlighted")).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"highlighted"}).AddRow(true))

	highlighted, err := repo.ToggleHighlight(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, highlighted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
