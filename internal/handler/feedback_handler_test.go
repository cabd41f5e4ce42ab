package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/middleware"
	"github.com/camatch/camatch-api/internal/models"
	"github.com/camatch/camatch-api/internal/service"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

// envelope mirrors the response wrapper for assertions across the handler
// tests in this package.
type envelope struct {
	Data       interface{}            `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

type feedbackStoreStub struct {
	saved   *models.InstructorFeedback
	entries []models.InstructorFeedback
	listErr error
}

func (s *feedbackStoreStub) UpsertByAssignment(_ context.Context, fb *models.InstructorFeedback) (*models.InstructorFeedback, error) {
	s.saved = fb
	out := *fb
	out.ID = "fb-1"
	return &out, nil
}

func (s *feedbackStoreStub) ListByCourse(_ context.Context, _ string) ([]models.InstructorFeedback, error) {
	return s.entries, s.listErr
}

type feedbackAssignmentStub struct {
	assignment *models.Assignment
	findErr    error
	statusID   string
	statusSet  models.AssignmentStatus
}

func (s *feedbackAssignmentStub) FindByID(_ context.Context, _ string) (*models.Assignment, error) {
	return s.assignment, s.findErr
}

func (s *feedbackAssignmentStub) UpdateStatus(_ context.Context, id string, status models.AssignmentStatus) error {
	s.statusID = id
	s.statusSet = status
	return nil
}

type auditLogStub struct {
	logs []*models.AuditLog
}

func (s *auditLogStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newFeedbackHandlerForTest(store *feedbackStoreStub, assignments *feedbackAssignmentStub, audit *auditLogStub) *FeedbackHandler {
	svc := service.NewFeedbackService(store, assignments, audit, nil, nil, nil, 0)
	return NewFeedbackHandler(svc)
}

func TestFeedbackHandlerSubmitConfirmsPending(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &feedbackStoreStub{}
	assignments := &feedbackAssignmentStub{
		assignment: &models.Assignment{ID: "as-1", StudentID: "sp-1", CourseID: "c-1", Status: models.AssignmentStatusPending},
	}
	audit := &auditLogStub{}
	handler := newFeedbackHandlerForTest(store, assignments, audit)

	payload, _ := json.Marshal(dto.SubmitFeedbackRequest{AssignmentID: "as-1", Rating: 5})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(http.MethodPost, "/professors/feedback", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "prof-1", Role: models.RoleProfessor})

	handler.Submit(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, store.saved)
	assert.Equal(t, "sp-1", store.saved.StudentID)
	assert.Equal(t, models.AssignmentStatusConfirmed, assignments.statusSet)
	assert.Equal(t, "as-1", assignments.statusID)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionAssignmentConfirm, audit.logs[0].Action)
}

func TestFeedbackHandlerSubmitUnknownAssignment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newFeedbackHandlerForTest(&feedbackStoreStub{}, &feedbackAssignmentStub{findErr: sql.ErrNoRows}, &auditLogStub{})

	payload, _ := json.Marshal(dto.SubmitFeedbackRequest{AssignmentID: "ghost", Rating: 3})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(http.MethodPost, "/professors/feedback", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "prof-1", Role: models.RoleProfessor})

	handler.Submit(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrNotFound.Code, env.Error.Code)
}

func TestFeedbackHandlerSubmitRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newFeedbackHandlerForTest(&feedbackStoreStub{}, &feedbackAssignmentStub{}, &auditLogStub{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/professors/feedback", bytes.NewBufferString(`{}`))

	handler.Submit(c)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFeedbackHandlerCourseSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	comment := "strong recitations"
	store := &feedbackStoreStub{
		entries: []models.InstructorFeedback{
			{ID: "fb-1", CourseID: "c-1", Rating: 4, Comment: &comment},
			{ID: "fb-2", CourseID: "c-1", Rating: 5},
		},
	}
	handler := newFeedbackHandlerForTest(store, &feedbackAssignmentStub{}, &auditLogStub{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/c-1/feedback/summary", nil)
	c.Params = gin.Params{{Key: "id", Value: "c-1"}}

	handler.CourseSummary(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "c-1", data["course_id"])
	assert.InDelta(t, 4.5, data["average_rating"], 0.001)
	assert.EqualValues(t, 2, data["review_count"])
	require.NotNil(t, env.Meta)
	assert.Equal(t, false, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
}
