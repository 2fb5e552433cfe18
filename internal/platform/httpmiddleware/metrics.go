package httpmiddleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"shorty.local/internal/platform/metrics"
)

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()
		defer metrics.HTTPInflightRequests.Dec()
		// 用路由模板（/api/v1/links/:id）而不是真实 path，避免高基数 label
		route := c.FullPath()
		if route == "" {
			route = "UNMATCHED"
		}
		defer func() {
			duration := time.Since(start).Seconds()
			status := c.Writer.Status()
			metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(c.Request.Method, route).Observe(duration)
		}()
		c.Next()
	}
}
