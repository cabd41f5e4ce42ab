package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/camatch/camatch-api/internal/service"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
	"github.com/camatch/camatch-api/pkg/response"
)

// AnalyticsHandler exposes the admin dashboard aggregates.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Overview godoc
// @Summary Platform overview
// @Description Totals for students, courses, preferences and assignments plus per-track fill rates
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/analytics/overview [get]
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}

	start := time.Now()
	overview, cacheHit, err := h.analytics.Overview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondTimed(c, overview, cacheHit, start)
}
