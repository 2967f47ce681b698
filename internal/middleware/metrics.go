package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/service"
)

// Metrics records request duration and status per route. The route
// template (c.FullPath) keys the series so /studies/:id stays one
// label value instead of one per uuid; unmatched requests fall back to
// the raw path, which only ever hits 404s.
func Metrics(svc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		svc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
