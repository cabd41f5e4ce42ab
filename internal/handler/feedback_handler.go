package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/service"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
	"github.com/camatch/camatch-api/pkg/response"
)

// FeedbackHandler exposes instructor feedback submission and the cached
// per-course summary.
type FeedbackHandler struct {
	feedback *service.FeedbackService
}

// NewFeedbackHandler constructs FeedbackHandler.
func NewFeedbackHandler(feedback *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

// Submit godoc
// @Summary Submit feedback
// @Description Records a 1-5 rating for a past assignment; resubmission overwrites the earlier entry
// @Tags Feedback
// @Accept json
// @Produce json
// @Param payload body dto.SubmitFeedbackRequest true "Feedback"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /professors/feedback [post]
func (h *FeedbackHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid feedback payload"))
		return
	}

	entry, err := h.feedback.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// CourseSummary godoc
// @Summary Course feedback summary
// @Description Aggregated rating distribution for one course's past TAs
// @Tags Feedback
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/feedback/summary [get]
func (h *FeedbackHandler) CourseSummary(c *gin.Context) {
	start := time.Now()
	summary, cacheHit, err := h.feedback.CourseSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondTimed(c, summary, cacheHit, start)
}
