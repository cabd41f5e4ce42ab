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

// AdminHandler exposes the administrator endpoints: course management,
// matching runs, manual assignments and outbound communications.
type AdminHandler struct {
	courses        *service.CourseService
	matching       *service.MatchingService
	assignments    *service.AssignmentService
	communications *service.CommunicationService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(courses *service.CourseService, matching *service.MatchingService, assignments *service.AssignmentService, communications *service.CommunicationService) *AdminHandler {
	return &AdminHandler{
		courses:        courses,
		matching:       matching,
		assignments:    assignments,
		communications: communications,
	}
}

// ListCourses godoc
// @Summary List courses
// @Description Lists courses with applicant and roster counts
// @Tags Admin
// @Produce json
// @Param track query string false "Filter by track"
// @Param professor_id query string false "Filter by owning professor"
// @Param search query string false "Search code or title"
// @Success 200 {object} response.Envelope
// @Router /admin/courses [get]
func (h *AdminHandler) ListCourses(c *gin.Context) {
	var filter models.CourseFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.ProfessorID = c.Query("professor_id")
	if raw := c.Query("track"); raw != "" {
		track, ok := models.ParseTrack(raw)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown track filter"))
			return
		}
		filter.Track = &track
	}

	courses, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// GetCourse godoc
// @Summary Get course
// @Tags Admin
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/courses/{id} [get]
func (h *AdminHandler) GetCourse(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// CreateCourse godoc
// @Summary Create course
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/courses [post]
func (h *AdminHandler) CreateCourse(c *gin.Context) {
	var req dto.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// UpdateCourse godoc
// @Summary Update course
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/courses/{id} [put]
func (h *AdminHandler) UpdateCourse(c *gin.Context) {
	var req dto.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// DeleteCourse godoc
// @Summary Delete course
// @Tags Admin
// @Produce json
// @Param id path string true "Course ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /admin/courses/{id} [delete]
func (h *AdminHandler) DeleteCourse(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ImportCourses godoc
// @Summary Import courses from CSV
// @Description Upserts courses by code; the response lists per-row rejections
// @Tags Admin
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/courses/import [post]
func (h *AdminHandler) ImportCourses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file field is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	result, err := h.courses.ImportCSV(c.Request.Context(), claims.UserID, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RunMatching godoc
// @Summary Run the matching engine
// @Description Fills remaining vacancies with the highest-ranked eligible candidates; an empty course list covers the whole catalog
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.MatchRequest true "Run scope"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/matching/run [post]
func (h *AdminHandler) RunMatching(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid matching payload"))
		return
	}

	result, err := h.matching.Run(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListAssignments godoc
// @Summary List assignments
// @Description Lists roster rows with student and course display fields
// @Tags Admin
// @Produce json
// @Param course_id query string false "Filter by course"
// @Param student_id query string false "Filter by student"
// @Param status query string false "Filter by status" Enums(pending, confirmed)
// @Success 200 {object} response.Envelope
// @Router /admin/assignments [get]
func (h *AdminHandler) ListAssignments(c *gin.Context) {
	filter := models.AssignmentFilter{
		CourseID:  c.Query("course_id"),
		StudentID: c.Query("student_id"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.AssignmentStatus(raw)
		if status != models.AssignmentStatusPending && status != models.AssignmentStatusConfirmed {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status filter"))
			return
		}
		filter.Status = &status
	}

	details, err := h.assignments.ListDetails(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// CreateAssignment godoc
// @Summary Create manual assignment
// @Description Places a student on a course roster by hand; one assignment per student, vacancy permitting
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/assignments [post]
func (h *AdminHandler) CreateAssignment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	detail, err := h.assignments.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// RevokeAssignment godoc
// @Summary Revoke assignment
// @Description Removes an assignment and releases the vacancy back to the course
// @Tags Admin
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /admin/assignments/{id} [delete]
func (h *AdminHandler) RevokeAssignment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.assignments.Revoke(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ComposeCommunication godoc
// @Summary Send bulk mail to assigned TAs
// @Description Queues one message per matching assignment; recipients without an email address are skipped
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.ComposeCommunicationRequest true "Message payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/communications [post]
func (h *AdminHandler) ComposeCommunication(c *gin.Context) {
	var req dto.ComposeCommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid communication payload"))
		return
	}

	result, err := h.communications.Compose(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}
