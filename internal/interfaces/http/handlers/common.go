// Package handlers implements the sigparse REST endpoints on gin.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// parsePagination reads from and size query parameters, clamping size to
// maxPageSize.
func parsePagination(c *gin.Context) (from, size int) {
	size = defaultPageSize
	if v := c.Query("from"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			from = n
		}
	}
	if v := c.Query("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return from, size
}

// writeBindError answers a malformed request body.
func writeBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Code:    string(errors.ErrCodeBadRequest),
		Message: "invalid request body",
		Detail:  err.Error(),
	})
}

// writeAppError maps err to its HTTP status. Server-side failures are
// logged and their message replaced with the code's default.
func writeAppError(c *gin.Context, logger logging.Logger, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	resp := ErrorResponse{Code: string(code)}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			logging.String("path", c.FullPath()),
			logging.String("code", string(code)),
			logging.Err(err))
		resp.Message = errors.DefaultMessageForCode(code)
	} else {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			resp.Message = appErr.Message
			resp.Detail = appErr.Detail
		} else {
			resp.Message = err.Error()
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}
