package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/whale-spotting-api/internal/service"
)

// unmatchedRoute labels requests that did not resolve to a registered route.
// Raw URLs are never used as label values so the series count stays bounded.
const unmatchedRoute = "unmatched"

// Metrics records method, route template, status and latency for each request.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		started := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(started))
	}
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}
