package middleware

import (
	"strconv"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics records admin API latency and count per route template and status
// class ("2xx", "4xx"). Unmatched paths share the "unmatched" route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		class := statusClass(c.Writer.Status())

		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route, class).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, class).Inc()
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
