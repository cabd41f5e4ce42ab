package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	"github.com/camatch/camatch-api/internal/service"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
	"github.com/camatch/camatch-api/pkg/response"
)

// ProfessorHandler exposes the instructor-facing endpoints: owned
// courses, applicant review, roster management and candidate search.
type ProfessorHandler struct {
	auth        *service.AuthService
	courses     *service.CourseService
	assignments *service.AssignmentService
	preferences *service.PreferenceService
	students    *service.StudentService
}

// NewProfessorHandler constructs ProfessorHandler.
func NewProfessorHandler(auth *service.AuthService, courses *service.CourseService, assignments *service.AssignmentService, preferences *service.PreferenceService, students *service.StudentService) *ProfessorHandler {
	return &ProfessorHandler{
		auth:        auth,
		courses:     courses,
		assignments: assignments,
		preferences: preferences,
		students:    students,
	}
}

// professorScope returns the ownership filter for the caller. Admins get
// an empty scope, which the services treat as "any course".
func professorScope(claims *models.JWTClaims) string {
	if claims.Role == models.RoleAdmin {
		return ""
	}
	return claims.UserID
}

// Me godoc
// @Summary Get professor overview
// @Description Returns the caller's account info and owned course ids
// @Tags Professors
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /professors/me [get]
func (h *ProfessorHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info, err := h.auth.CurrentUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	courseIDs, err := h.courses.OwnedCourseIDs(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.ProfessorOverview{User: *info, CourseIDs: courseIDs}, nil)
}

// Courses godoc
// @Summary List owned courses
// @Description Returns courses assigned to the caller with applicant and roster counts
// @Tags Professors
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /professors/me/courses [get]
func (h *ProfessorHandler) Courses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courses, err := h.courses.OwnedCourses(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Applications godoc
// @Summary List course applicants
// @Description Returns applicants for one owned course, ranked with score previews
// @Tags Professors
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /professors/courses/{id}/applications [get]
func (h *ProfessorHandler) Applications(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courseID := c.Param("id")

	if _, err := h.courses.EnsureOwned(c.Request.Context(), courseID, professorScope(claims)); err != nil {
		response.Error(c, err)
		return
	}
	applications, err := h.courses.Applications(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applications, nil)
}

// Roster godoc
// @Summary Get course roster
// @Description Returns the assignments on one owned course
// @Tags Professors
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /professors/courses/{id}/roster [get]
func (h *ProfessorHandler) Roster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	roster, err := h.assignments.Roster(c.Request.Context(), professorScope(claims), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// OverrideAssign godoc
// @Summary Assign a student directly
// @Description Places a student on the caller's course outside a matching run; the assignment is confirmed immediately
// @Tags Professors
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body map[string]string true "Student ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /professors/courses/{id}/assignments [post]
func (h *ProfessorHandler) OverrideAssign(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "student_id is required"))
		return
	}

	detail, err := h.assignments.OverrideAssign(c.Request.Context(), claims.UserID, professorScope(claims), c.Param("id"), payload.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// RemoveAssignment godoc
// @Summary Remove a roster assignment
// @Description Removes an assignment from the caller's course and releases the vacancy
// @Tags Professors
// @Produce json
// @Param id path string true "Course ID"
// @Param assignmentId path string true "Assignment ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /professors/courses/{id}/assignments/{assignmentId} [delete]
func (h *ProfessorHandler) RemoveAssignment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	err := h.assignments.RemoveForCourse(c.Request.Context(), claims.UserID, professorScope(claims), c.Param("id"), c.Param("assignmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ToggleHighlight godoc
// @Summary Toggle applicant highlight
// @Description Flags or unflags an applicant's preference on the caller's course
// @Tags Professors
// @Produce json
// @Param id path string true "Course ID"
// @Param preferenceId path string true "Preference ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /professors/courses/{id}/preferences/{preferenceId}/highlight [post]
func (h *ProfessorHandler) ToggleHighlight(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courseID := c.Param("id")

	if _, err := h.courses.EnsureOwned(c.Request.Context(), courseID, professorScope(claims)); err != nil {
		response.Error(c, err)
		return
	}
	highlighted, err := h.preferences.ToggleHighlight(c.Request.Context(), courseID, c.Param("preferenceId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"highlighted": highlighted}, nil)
}

// SearchStudents godoc
// @Summary Search candidates
// @Description Searches student profiles by name, UNI or degree program
// @Tags Professors
// @Produce json
// @Param q query string true "Search term"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /professors/students/search [get]
func (h *ProfessorHandler) SearchStudents(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "q parameter is required"))
		return
	}

	results, err := h.students.SearchCandidates(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}
