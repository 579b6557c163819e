package middleware

import (
	"time"

	"rental-backend/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics records every request under its route template, so /rooms/1 and
// /rooms/2 share a series. Unmatched routes are recorded as "unmatched".
func Metrics(rec metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rec.RecordRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
