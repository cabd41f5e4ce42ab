package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/camatch/camatch-api/internal/service"
)

// Metrics records one observation per request: method, matched route
// template, status, and latency. Unmatched requests (404s) are recorded
// under their raw path so probes against bad URLs still show up.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
