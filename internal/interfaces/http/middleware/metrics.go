package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request counts and latency labelled by route template,
// so /api/v1/instructions/:inputId is one series.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		m.HTTPActiveRequests.WithLabelValues(method).Inc()
		start := time.Now()

		c.Next()

		m.HTTPActiveRequests.WithLabelValues(method).Dec()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(method, route, c.Writer.Status(), time.Since(start))
	}
}

// MaxBodySize caps request bodies at n bytes.
func MaxBodySize(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
