package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

type mockFeedbackStore struct {
	byAssignment map[string]*models.InstructorFeedback
	byCourse     map[string][]models.InstructorFeedback
	upserts      int
}

func newMockFeedbackStore() *mockFeedbackStore {
	return &mockFeedbackStore{
		byAssignment: make(map[string]*models.InstructorFeedback),
		byCourse:     make(map[string][]models.InstructorFeedback),
	}
}

func (m *mockFeedbackStore) UpsertByAssignment(ctx context.Context, feedback *models.InstructorFeedback) (*models.InstructorFeedback, error) {
	m.upserts++
	if existing, ok := m.byAssignment[feedback.AssignmentID]; ok {
		existing.Rating = feedback.Rating
		existing.Comment = feedback.Comment
		copied := *existing
		return &copied, nil
	}
	stored := *feedback
	stored.ID = "feedback-1"
	m.byAssignment[feedback.AssignmentID] = &stored
	copied := stored
	return &copied, nil
}

func (m *mockFeedbackStore) ListByCourse(ctx context.Context, courseID string) ([]models.InstructorFeedback, error) {
	return m.byCourse[courseID], nil
}

type mockFeedbackAssignments struct {
	assignments map[string]*models.Assignment
	statusSets  []models.AssignmentStatus
}

func (m *mockFeedbackAssignments) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, ok := m.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *assignment
	return &copied, nil
}

func (m *mockFeedbackAssignments) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus) error {
	assignment, ok := m.assignments[id]
	if !ok {
		return sql.ErrNoRows
	}
	assignment.Status = status
	m.statusSets = append(m.statusSets, status)
	return nil
}

func newFeedbackServiceForTest(status models.AssignmentStatus) (*FeedbackService, *mockFeedbackStore, *mockFeedbackAssignments, *mockCourseAudit) {
	store := newMockFeedbackStore()
	assignments := &mockFeedbackAssignments{assignments: map[string]*models.Assignment{
		"a1": {ID: "a1", StudentID: "s1", CourseID: "c1", Status: status},
	}}
	audit := &mockCourseAudit{}
	svc := NewFeedbackService(store, assignments, audit, nil, nil, nil, 0)
	return svc, store, assignments, audit
}

func TestFeedbackServiceSubmitConfirmsPendingAssignment(t *testing.T) {
	svc, store, assignments, audit := newFeedbackServiceForTest(models.AssignmentStatusPending)

	saved, err := svc.Submit(context.Background(), "prof-1", dto.SubmitFeedbackRequest{
		AssignmentID: "a1",
		Rating:       4,
		Comment:      stringPtr("reliable grader"),
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", saved.StudentID)
	assert.Equal(t, "c1", saved.CourseID)
	assert.Equal(t, 4, saved.Rating)

	assert.Equal(t, models.AssignmentStatusConfirmed, assignments.assignments["a1"].Status)
	assert.Equal(t, []models.AssignmentStatus{models.AssignmentStatusConfirmed}, assignments.statusSets)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionAssignmentConfirm, audit.logs[0].Action)
	assert.Equal(t, 1, store.upserts)
}

func TestFeedbackServiceSubmitLeavesConfirmedAlone(t *testing.T) {
	svc, _, assignments, audit := newFeedbackServiceForTest(models.AssignmentStatusConfirmed)

	_, err := svc.Submit(context.Background(), "prof-1", dto.SubmitFeedbackRequest{
		AssignmentID: "a1",
		Rating:       5,
	})
	require.NoError(t, err)
	assert.Empty(t, assignments.statusSets)
	assert.Empty(t, audit.logs)
}

func TestFeedbackServiceSubmitOverwrites(t *testing.T) {
	svc, store, _, _ := newFeedbackServiceForTest(models.AssignmentStatusConfirmed)

	first, err := svc.Submit(context.Background(), "prof-1", dto.SubmitFeedbackRequest{
		AssignmentID: "a1",
		Rating:       2,
	})
	require.NoError(t, err)

	second, err := svc.Submit(context.Background(), "prof-1", dto.SubmitFeedbackRequest{
		AssignmentID: "a1",
		Rating:       5,
		Comment:      stringPtr("improved a lot"),
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Rating)
	assert.Equal(t, 2, store.upserts)
	require.Len(t, store.byAssignment, 1)
	assert.Equal(t, 5, store.byAssignment["a1"].Rating)
}

func TestFeedbackServiceSubmitAssignmentNotFound(t *testing.T) {
	svc, _, _, _ := newFeedbackServiceForTest(models.AssignmentStatusPending)

	_, err := svc.Submit(context.Background(), "prof-1", dto.SubmitFeedbackRequest{
		AssignmentID: "missing",
		Rating:       3,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestFeedbackServiceSubmitRejectsOutOfRangeRating(t *testing.T) {
	svc, store, _, _ := newFeedbackServiceForTest(models.AssignmentStatusPending)

	for _, rating := range []int{0, 6, -1} {
		_, err := svc.Submit(context.Background(), "prof-1", dto.SubmitFeedbackRequest{
			AssignmentID: "a1",
			Rating:       rating,
		})
		require.Error(t, err, "rating %d", rating)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	}
	assert.Equal(t, 0, store.upserts)
}

func TestFeedbackServiceCourseSummary(t *testing.T) {
	svc, store, _, _ := newFeedbackServiceForTest(models.AssignmentStatusConfirmed)
	store.byCourse["c1"] = []models.InstructorFeedback{
		{ID: "f1", CourseID: "c1", Rating: 5, Comment: stringPtr("great")},
		{ID: "f2", CourseID: "c1", Rating: 3},
		{ID: "f3", CourseID: "c1", Rating: 4, Comment: stringPtr("")},
	}

	summary, cached, err := svc.CourseSummary(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "c1", summary.CourseID)
	assert.Equal(t, 3, summary.ReviewCount)
	require.NotNil(t, summary.AverageRating)
	assert.InDelta(t, 4.0, *summary.AverageRating, 1e-9)
	// Blank comments stay out of the digest.
	assert.Equal(t, []string{"great"}, summary.Comments)
}

func TestFeedbackServiceCourseSummaryEmpty(t *testing.T) {
	svc, _, _, _ := newFeedbackServiceForTest(models.AssignmentStatusConfirmed)

	summary, cached, err := svc.CourseSummary(context.Background(), "c9")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 0, summary.ReviewCount)
	// No reviews means no average at all rather than a misleading zero.
	assert.Nil(t, summary.AverageRating)
	assert.Empty(t, summary.Comments)
}
