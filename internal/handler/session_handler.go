// internal/handler/session_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-session/internal/model"
	"device-session/internal/utils"
)

// SessionHandler exposes the connection lifecycle of the device session
type SessionHandler struct {
	session SessionService
	logger  *utils.ServiceLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(session SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		session: session,
		logger:  utils.NewServiceLogger(logger, "session-handler"),
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	session := router.Group("/session")
	{
		session.GET("", h.GetSession)
		session.GET("/diagnostics", h.GetDiagnostics)
		session.POST("/connect", h.Connect)
		session.POST("/disconnect", h.Disconnect)
		session.POST("/reset", h.ForceReset)
	}
}

// SessionStatus is the short form of the session diagnostics
type SessionStatus struct {
	SessionID     string                `json:"session_id"`
	State         model.ConnectionState `json:"state"`
	TransportType model.TransportType   `json:"transport_type"`
	Address       string                `json:"address"`
	RetryCount    int                   `json:"retry_count"`
}

// ResetRequest represents a forced reset request
type ResetRequest struct {
	Reason string `json:"reason"`
}

// GetSession returns the current connection state
// @Summary Get session state
// @Description Get the current connection state and transport of the device session
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=SessionStatus} "Session state retrieved"
// @Router /session [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	d := h.session.Diagnostics()
	utils.SuccessResponse(c, http.StatusOK, "Session state retrieved", &SessionStatus{
		SessionID:     d.SessionID,
		State:         d.State,
		TransportType: d.TransportType,
		Address:       d.Address,
		RetryCount:    d.RetryCount,
	})
}

// GetDiagnostics returns the full session diagnostics
// @Summary Get session diagnostics
// @Description Get counters, retry policy and health monitor status of the device session
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.Diagnostics} "Diagnostics retrieved"
// @Router /session/diagnostics [get]
func (h *SessionHandler) GetDiagnostics(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Diagnostics retrieved", h.session.Diagnostics())
}

// Connect starts a connect cycle
// @Summary Connect to the device
// @Description Open the transport. Failed attempts are retried in the background; the returned state is the state after the first attempt.
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=SessionStatus} "Connected"
// @Success 202 {object} utils.APIResponse{data=SessionStatus} "Connect in progress"
// @Failure 409 {object} utils.APIResponse "Session is not in a connectable state"
// @Failure 502 {object} utils.APIResponse "Connect failed"
// @Router /session/connect [post]
func (h *SessionHandler) Connect(c *gin.Context) {
	before := h.session.State()
	if !before.CanConnect() {
		utils.ErrorResponse(c, http.StatusConflict, "Session is "+before.String(), nil)
		return
	}

	state := h.session.Connect(c.Request.Context())
	status := &SessionStatus{SessionID: h.session.ID(), State: state}

	switch state {
	case model.StateConnected:
		h.logger.Info("Session connected")
		utils.SuccessResponse(c, http.StatusOK, "Connected", status)
	case model.StateFailed:
		utils.ErrorResponse(c, http.StatusBadGateway, "Connect failed", nil)
	default:
		utils.SuccessResponse(c, http.StatusAccepted, "Connect in progress", status)
	}
}

// Disconnect closes the connection and cancels pending retries
// @Summary Disconnect from the device
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=SessionStatus} "Disconnected"
// @Router /session/disconnect [post]
func (h *SessionHandler) Disconnect(c *gin.Context) {
	h.session.Disconnect()
	utils.SuccessResponse(c, http.StatusOK, "Disconnected", &SessionStatus{
		SessionID: h.session.ID(),
		State:     h.session.State(),
	})
}

// ForceReset tears the session down regardless of its state
// @Summary Force reset the session
// @Description Tear down the transport and timers and return to DISCONNECTED
// @Tags Session
// @Accept json
// @Produce json
// @Param request body ResetRequest false "Reset reason"
// @Success 200 {object} utils.APIResponse{data=SessionStatus} "Session reset"
// @Router /session/reset [post]
func (h *SessionHandler) ForceReset(c *gin.Context) {
	var req ResetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "api request"
	}

	h.session.ForceReset(req.Reason)
	utils.SuccessResponse(c, http.StatusOK, "Session reset", &SessionStatus{
		SessionID: h.session.ID(),
		State:     h.session.State(),
	})
}
