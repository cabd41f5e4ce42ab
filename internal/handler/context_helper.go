package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/camatch/camatch-api/internal/middleware"
	"github.com/camatch/camatch-api/internal/models"
	"github.com/camatch/camatch-api/pkg/response"
)

// claimsFromContext returns the JWT claims stored by the auth middleware,
// or nil when the request carried no valid session.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, _ := c.Get(middleware.ContextUserKey)
	claims, _ := value.(*models.JWTClaims)
	return claims
}

// clientMeta captures the caller's address and agent for audit trails.
func clientMeta(c *gin.Context) models.LoginRequest {
	return models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// respondTimed writes payload with cache-hit and processing-time metadata.
// Aggregate endpoints use it so clients can tell a cached snapshot from a
// fresh one.
func respondTimed(c *gin.Context, payload interface{}, cacheHit bool, start time.Time) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, payload, nil, meta)
}
