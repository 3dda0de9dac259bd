// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-session/internal/config"
	"device-session/internal/model"
	"device-session/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	session   SessionService
	config    *config.Config
	startedAt time.Time
	logger    *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(session SessionService, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		session:   session,
		config:    config,
		startedAt: time.Now(),
		logger:    utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck performs general health check
// @Summary Health check
// @Description Get service health including the device session state. The service is degraded while the device is not connected and unhealthy once retries are exhausted.
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy or degraded"
// @Failure 503 {object} HealthResponse "Service is unhealthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	d := h.session.Diagnostics()

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	session := CheckResult{
		Status:  "healthy",
		Message: d.State.String(),
		Data: map[string]interface{}{
			"session_id":      d.SessionID,
			"transport":       d.TransportType,
			"address":         d.Address,
			"retry_count":     d.RetryCount,
			"monitor_running": d.MonitorRunning,
		},
	}
	switch d.State {
	case model.StateConnected:
	case model.StateFailed:
		session.Status = "unhealthy"
		health.Status = "unhealthy"
	default:
		session.Status = "degraded"
		health.Status = "degraded"
	}
	if d.LastActivity != nil {
		session.Data["last_activity"] = d.LastActivity
	}
	health.Checks["session"] = session

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		h.logger.Warn("Health check unhealthy", zap.String("state", d.State.String()))
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck for Kubernetes readiness probe
// @Summary Readiness check
// @Description The service is ready unless the session has exhausted its retries
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,state=string,timestamp=string} "Service is ready"
// @Failure 503 {object} object{status=string,reason=string} "Service is not ready"
// @Router /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	state := h.session.State()
	if state == model.StateFailed {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "device session failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"state":     state,
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is alive"
// @Router /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
