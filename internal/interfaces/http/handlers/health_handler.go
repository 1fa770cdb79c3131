package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// HealthChecker is a dependency that can report its health.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

func (f HealthCheckFunc) Name() string                    { return f.ComponentName }
func (f HealthCheckFunc) Check(ctx context.Context) error { return f.Fn(ctx) }

// HealthObserver receives every component result, for example to export
// a gauge.
type HealthObserver func(component string, up bool)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	startAt  time.Time
	observe  HealthObserver
	timeout  time.Duration
}

// NewHealthHandler creates a handler checking every checker on readiness.
func NewHealthHandler(version string, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
		timeout:  5 * time.Second,
	}
}

// WithObserver reports each component result to fn.
func (h *HealthHandler) WithObserver(fn HealthObserver) *HealthHandler {
	h.observe = fn
	return h
}

// RegisterRoutes mounts /healthz, /readyz and /healthz/detail.
func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/healthz/detail", h.Detailed)
}

// LivenessResponse is the body of GET /healthz.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the body of GET /readyz.
type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

// DetailedResponse is the body of GET /healthz/detail.
type DetailedResponse struct {
	Status     string                    `json:"status"`
	Version    string                    `json:"version"`
	Uptime     string                    `json:"uptime"`
	Components map[string]ComponentCheck `json:"components"`
}

// ComponentCheck is one dependency's result.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Liveness never touches dependencies.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  h.uptime(),
	})
}

// Readiness answers 503 when any dependency is unhealthy.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if len(h.checkers) == 0 {
		c.JSON(http.StatusOK, ReadinessResponse{Status: "ready"})
		return
	}

	components, healthy := h.checkAll(c.Request.Context())
	resp := ReadinessResponse{Status: "ready", Components: components}
	if !healthy {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Detailed reports every component with its latency.
func (h *HealthHandler) Detailed(c *gin.Context) {
	components, healthy := h.checkAll(c.Request.Context())
	resp := DetailedResponse{
		Status:     statusHealthy,
		Version:    h.version,
		Uptime:     h.uptime(),
		Components: components,
	}
	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (h *HealthHandler) uptime() string {
	return time.Since(h.startAt).Truncate(time.Second).String()
}

// checkAll runs every checker concurrently under the handler timeout.
func (h *HealthHandler) checkAll(ctx context.Context) (map[string]ComponentCheck, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]ComponentCheck, len(h.checkers))
		healthy = true
	)
	var g errgroup.Group
	for _, checker := range h.checkers {
		checker := checker
		g.Go(func() error {
			start := time.Now()
			err := checker.Check(ctx)
			cc := ComponentCheck{
				Status:  statusHealthy,
				Latency: time.Since(start).Truncate(time.Microsecond).String(),
			}
			if err != nil {
				cc.Status = statusUnhealthy
				cc.Error = err.Error()
			}
			if h.observe != nil {
				h.observe(checker.Name(), err == nil)
			}

			mu.Lock()
			results[checker.Name()] = cc
			if err != nil {
				healthy = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, healthy
}
