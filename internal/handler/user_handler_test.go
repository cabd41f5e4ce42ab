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

	"github.com/camatch/camatch-api/internal/middleware"
	"github.com/camatch/camatch-api/internal/models"
	"github.com/camatch/camatch-api/internal/service"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

type userRepoStub struct {
	listUsers  []models.User
	listTotal  int
	lastFilter models.UserFilter
	byID       map[string]*models.User
	existing   *models.User
	created    []*models.User
	deleted    []string
	revoked    []string
	logs       []*models.AuditLog
}

func (s *userRepoStub) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	s.lastFilter = filter
	return s.listUsers, s.listTotal, nil
}

func (s *userRepoStub) FindByID(_ context.Context, id string) (*models.User, error) {
	if user, ok := s.byID[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) FindByEmailOrUNI(_ context.Context, _, _ string) (*models.User, error) {
	if s.existing != nil {
		return s.existing, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) Create(_ context.Context, user *models.User) error {
	s.created = append(s.created, user)
	return nil
}

func (s *userRepoStub) Update(_ context.Context, _ *models.User) error { return nil }

func (s *userRepoStub) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *userRepoStub) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	s.revoked = append(s.revoked, userID)
	return nil
}

func (s *userRepoStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type studentRepoStub struct {
	profiles []*models.StudentProfile
}

func (s *studentRepoStub) Create(_ context.Context, profile *models.StudentProfile) error {
	s.profiles = append(s.profiles, profile)
	return nil
}

func (s *studentRepoStub) FindByUserID(_ context.Context, _ string) (*models.StudentProfile, error) {
	return nil, sql.ErrNoRows
}

func newUserHandlerForTest(users *userRepoStub) *UserHandler {
	svc := service.NewUserService(users, &studentRepoStub{}, nil, nil)
	return NewUserHandler(svc)
}

func adminContext(rec *httptest.ResponseRecorder, req *http.Request) *gin.Context {
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	return c
}

func TestUserHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &userRepoStub{
		listUsers: []models.User{{ID: "u1", Email: "a@univ.edu", UNI: "ab1234", Role: models.RoleProfessor, Active: true}},
		listTotal: 41,
	}
	handler := newUserHandlerForTest(repo)

	rec := httptest.NewRecorder()
	c := adminContext(rec, httptest.NewRequest(http.MethodGet, "/admin/users?page=2&page_size=10&role=professor&active=true&search=smith", nil))

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, repo.lastFilter.Page)
	assert.Equal(t, 10, repo.lastFilter.PageSize)
	require.NotNil(t, repo.lastFilter.Role)
	assert.Equal(t, models.RoleProfessor, *repo.lastFilter.Role)
	require.NotNil(t, repo.lastFilter.Active)
	assert.True(t, *repo.lastFilter.Active)
	assert.Equal(t, "smith", repo.lastFilter.Search)

	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 41, env.Pagination.TotalCount)
	assert.Equal(t, 2, env.Pagination.Page)
}

func TestUserHandlerCreateProfessor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &userRepoStub{}
	handler := newUserHandlerForTest(repo)

	payload, _ := json.Marshal(service.CreateUserRequest{
		Email:    "New.Prof@univ.edu",
		UNI:      "np2001",
		Password: "super-secret-1",
		Role:     models.RoleProfessor,
	})
	rec := httptest.NewRecorder()
	c := adminContext(rec, httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewReader(payload)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "new.prof@univ.edu", repo.created[0].Email)
	assert.Equal(t, models.RoleProfessor, repo.created[0].Role)
	require.Len(t, repo.logs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.logs[0].Action)
}

func TestUserHandlerCreateDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &userRepoStub{existing: &models.User{ID: "u9", Email: "taken@univ.edu"}}
	handler := newUserHandlerForTest(repo)

	payload, _ := json.Marshal(service.CreateUserRequest{
		Email:    "taken@univ.edu",
		UNI:      "tk1001",
		Password: "super-secret-1",
		Role:     models.RoleStudent,
	})
	rec := httptest.NewRecorder()
	c := adminContext(rec, httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewReader(payload)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	require.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrConflict.Code, env.Error.Code)
	assert.Empty(t, repo.created)
}

func TestUserHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newUserHandlerForTest(&userRepoStub{})

	rec := httptest.NewRecorder()
	c := adminContext(rec, httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewBufferString(`{"email":`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserHandlerDeactivate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &userRepoStub{byID: map[string]*models.User{
		"u2": {ID: "u2", Email: "prof@univ.edu", Role: models.RoleProfessor, Active: true},
	}}
	handler := newUserHandlerForTest(repo)

	rec := httptest.NewRecorder()
	c := adminContext(rec, httptest.NewRequest(http.MethodDelete, "/admin/users/u2", nil))
	c.Params = gin.Params{{Key: "id", Value: "u2"}}

	handler.Deactivate(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"u2"}, repo.deleted)
	assert.Equal(t, []string{"u2"}, repo.revoked)
}

func TestUserHandlerDeactivateSelf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &userRepoStub{byID: map[string]*models.User{
		"admin-1": {ID: "admin-1", Role: models.RoleAdmin, Active: true},
	}}
	handler := newUserHandlerForTest(repo)

	rec := httptest.NewRecorder()
	c := adminContext(rec, httptest.NewRequest(http.MethodDelete, "/admin/users/admin-1", nil))
	c.Params = gin.Params{{Key: "id", Value: "admin-1"}}

	handler.Deactivate(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrValidation.Code, env.Error.Code)
	assert.Empty(t, repo.deleted)
}
