package handler

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	"github.com/camatch/camatch-api/internal/service"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
	"github.com/camatch/camatch-api/pkg/response"
)

// StudentHandler exposes the candidate-facing endpoints: profile,
// course catalog, ranked preferences and document management.
type StudentHandler struct {
	students    *service.StudentService
	preferences *service.PreferenceService
	documents   *service.DocumentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService, preferences *service.PreferenceService, documents *service.DocumentService) *StudentHandler {
	return &StudentHandler{students: students, preferences: preferences, documents: documents}
}

// profileID resolves the caller's student profile or writes a 403.
func profileID(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	if claims.StudentProfileID == nil || *claims.StudentProfileID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "account has no student profile"))
		return "", false
	}
	return *claims.StudentProfileID, true
}

// Me godoc
// @Summary Get own profile
// @Description Returns the student profile with its current preferences
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /students/me [get]
func (h *StudentHandler) Me(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	profile, err := h.students.Me(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateMe godoc
// @Summary Update own profile
// @Description Updates the student-editable profile fields; omitted fields stay unchanged
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.UpdateStudentProfileRequest true "Profile fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/me [patch]
func (h *StudentHandler) UpdateMe(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	var req dto.UpdateStudentProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}
	profile, err := h.students.UpdateMe(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Catalog godoc
// @Summary Browse course catalog
// @Description Lists courses open for preference selection
// @Tags Students
// @Produce json
// @Param track query string false "Filter by track"
// @Param search query string false "Search code or title"
// @Success 200 {object} response.Envelope
// @Router /students/courses [get]
func (h *StudentHandler) Catalog(c *gin.Context) {
	var filter models.CourseFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if raw := c.Query("track"); raw != "" {
		track, ok := models.ParseTrack(raw)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown track filter"))
			return
		}
		filter.Track = &track
	}

	courses, err := h.students.Catalog(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// ListPreferences godoc
// @Summary List own preferences
// @Description Returns the student's ranked course preferences
// @Tags Preferences
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/me/preferences [get]
func (h *StudentHandler) ListPreferences(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	prefs, err := h.preferences.ListMine(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs, nil)
}

// ReplacePreferences godoc
// @Summary Replace preference list
// @Description Swaps the whole ranked preference list in one call
// @Tags Preferences
// @Accept json
// @Produce json
// @Param payload body dto.ReplacePreferencesRequest true "Preference list"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/me/preferences [put]
func (h *StudentHandler) ReplacePreferences(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	var req dto.ReplacePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preferences payload"))
		return
	}
	prefs, err := h.preferences.Replace(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs, nil)
}

// AddPreference godoc
// @Summary Add a preference
// @Description Appends one ranked course preference
// @Tags Preferences
// @Accept json
// @Produce json
// @Param payload body dto.PreferenceInput true "Preference"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/me/preferences [post]
func (h *StudentHandler) AddPreference(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	var req dto.PreferenceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preference payload"))
		return
	}
	pref, err := h.preferences.Add(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pref)
}

// RemovePreference godoc
// @Summary Remove a preference
// @Tags Preferences
// @Produce json
// @Param id path string true "Preference ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /students/me/preferences/{id} [delete]
func (h *StudentHandler) RemovePreference(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	if err := h.preferences.Remove(c.Request.Context(), id, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadDocument godoc
// @Summary Upload resume or transcript
// @Description Stores the document and queues text extraction for skill matching
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param kind path string true "Document kind" Enums(resume, transcript)
// @Param file formData file true "Document file (PDF, DOCX or TXT)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /students/me/documents/{kind} [post]
func (h *StudentHandler) UploadDocument(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	kind, err := service.ParseDocumentKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
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

	res, err := h.documents.Upload(c.Request.Context(), id, kind, header.Filename, header.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// DocumentURL godoc
// @Summary Get signed document link
// @Description Returns an expiring download URL for the stored document
// @Tags Documents
// @Produce json
// @Param kind path string true "Document kind" Enums(resume, transcript)
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/me/documents/{kind}/url [get]
func (h *StudentHandler) DocumentURL(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	kind, err := service.ParseDocumentKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.documents.DownloadURL(c.Request.Context(), id, kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// DownloadDocument godoc
// @Summary Download own document
// @Description Streams the stored document; requires a valid signed token
// @Tags Documents
// @Produce application/octet-stream
// @Param kind path string true "Document kind" Enums(resume, transcript)
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/documents/{kind}/download [get]
func (h *StudentHandler) DownloadDocument(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	kind, err := service.ParseDocumentKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, name, err := h.documents.Download(c.Request.Context(), id, kind, token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat document"))
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
