package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CheckFunc is one readiness probe, such as a database ping.
type CheckFunc func(ctx context.Context) error

// readyTimeout bounds all readiness probes of one request.
const readyTimeout = 5 * time.Second

// HealthHandler handles health check requests.
type HealthHandler struct {
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		logger: logger.Named("health_handler"),
	}
}

// Handle processes GET /health requests.
func (h *HealthHandler) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyHandler handles readiness check requests.
type ReadyHandler struct {
	checks map[string]CheckFunc
	logger *zap.Logger
}

// NewReadyHandler creates a ReadyHandler running checks on every request.
func NewReadyHandler(checks map[string]CheckFunc, logger *zap.Logger) *ReadyHandler {
	return &ReadyHandler{
		checks: checks,
		logger: logger.Named("ready_handler"),
	}
}

// Handle processes GET /ready requests. Any failing check answers 503.
func (h *ReadyHandler) Handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(gin.H, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
