// Package middleware holds the gin middleware shared by the API routes.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const requestIDKey = "request_id"

// LoggingConfig holds configuration for the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are not logged.
	SkipPaths []string

	// SlowThreshold promotes successful requests to Warn.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig skips the probe and scrape endpoints.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// RequestID reuses an inbound X-Request-ID or mints one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID returns the id set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogging logs one line per request. 5xx responses log at Error,
// 4xx and slow requests at Warn.
func RequestLogging(logger logging.Logger, config LoggingConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.Int("status", status),
			logging.Duration("duration", duration),
			logging.Int("bytes", c.Writer.Size()),
			logging.String("client_ip", c.ClientIP()),
			logging.String("request_id", GetRequestID(c)),
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, logging.String("user_agent", ua))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logging.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request completed with server error", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request completed with client error", fields...)
		case config.SlowThreshold > 0 && duration >= config.SlowThreshold:
			logger.Warn("HTTP request completed (slow)", fields...)
		default:
			logger.Info("HTTP request completed", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 and logs it.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered",
			logging.Any("panic", recovered),
			logging.String("path", c.Request.URL.Path),
			logging.String("request_id", GetRequestID(c)))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeInternal,
			"message": errors.DefaultMessageForCode(errors.ErrCodeInternal),
		})
	})
}
