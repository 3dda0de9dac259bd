// internal/handler/command_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-session/internal/model"
	"device-session/internal/session"
	"device-session/internal/utils"
)

// CommandHandler sends device commands through the session. Responses arrive
// asynchronously as session events.
type CommandHandler struct {
	session SessionService
	logger  *utils.ServiceLogger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(session SessionService, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		session: session,
		logger:  utils.NewServiceLogger(logger, "command-handler"),
	}
}

// RegisterRoutes registers command routes
func (h *CommandHandler) RegisterRoutes(router *gin.RouterGroup) {
	session := router.Group("/session")
	{
		session.POST("/commands", h.SendCommand)
		session.POST("/config/schema", h.RequestConfigSchema)
		session.POST("/config/load", h.LoadConfig)
		session.PUT("/config", h.SaveConfig)
		session.POST("/restart", h.Restart)
		session.POST("/status", h.RequestStatus)
		session.POST("/poll", h.PollStatus)
	}
}

// CommandRequest represents a raw command request
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// SaveConfigRequest carries the configuration values to store on the device
type SaveConfigRequest struct {
	Values map[string]interface{} `json:"values" binding:"required"`
}

// CommandResult reports a sent command
type CommandResult struct {
	Command string                `json:"command"`
	State   model.ConnectionState `json:"state"`
}

// SendCommand sends one raw command line
// @Summary Send a raw command
// @Description Send one command line to the device. The reply arrives as a session event on the WebSocket stream.
// @Tags Commands
// @Accept json
// @Produce json
// @Param request body CommandRequest true "Command"
// @Success 202 {object} utils.APIResponse{data=CommandResult} "Command sent"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 409 {object} utils.APIResponse "Session is not connected"
// @Failure 502 {object} utils.APIResponse "Transport error"
// @Router /session/commands [post]
func (h *CommandHandler) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	command := strings.TrimSpace(req.Command)
	if command == "" || strings.ContainsAny(command, "\r\n") {
		utils.ErrorResponse(c, http.StatusBadRequest, "Command must be a single non-empty line", nil)
		return
	}

	h.dispatch(c, command, func(ctx context.Context) error {
		return h.session.Send(ctx, command)
	})
}

// RequestConfigSchema asks the device for its configuration schema
// @Summary Request the configuration schema
// @Tags Commands
// @Produce json
// @Success 202 {object} utils.APIResponse{data=CommandResult} "Command sent"
// @Failure 409 {object} utils.APIResponse "Session is not connected"
// @Router /session/config/schema [post]
func (h *CommandHandler) RequestConfigSchema(c *gin.Context) {
	h.dispatch(c, model.CmdConfigSchema, h.session.RequestConfigSchema)
}

// LoadConfig asks the device for its current configuration
// @Summary Request the current configuration
// @Tags Commands
// @Produce json
// @Success 202 {object} utils.APIResponse{data=CommandResult} "Command sent"
// @Failure 409 {object} utils.APIResponse "Session is not connected"
// @Router /session/config/load [post]
func (h *CommandHandler) LoadConfig(c *gin.Context) {
	h.dispatch(c, model.CmdConfigLoad, h.session.LoadConfig)
}

// SaveConfig stores configuration values on the device
// @Summary Save configuration
// @Tags Commands
// @Accept json
// @Produce json
// @Param request body SaveConfigRequest true "Configuration values"
// @Success 202 {object} utils.APIResponse{data=CommandResult} "Command sent"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 409 {object} utils.APIResponse "Session is not connected"
// @Router /session/config [put]
func (h *CommandHandler) SaveConfig(c *gin.Context) {
	var req SaveConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Values) == 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Configuration values are required", nil)
		return
	}

	h.dispatch(c, model.CmdConfigSave, func(ctx context.Context) error {
		return h.session.SaveConfig(ctx, req.Values)
	})
}

// Restart asks the device to reboot
// @Summary Restart the device
// @Tags Commands
// @Produce json
// @Success 202 {object} utils.APIResponse{data=CommandResult} "Command sent"
// @Failure 409 {object} utils.APIResponse "Session is not connected"
// @Router /session/restart [post]
func (h *CommandHandler) Restart(c *gin.Context) {
	h.logger.Warn("Device restart requested", zap.String("client_ip", c.ClientIP()))
	h.dispatch(c, model.CmdRestart, h.session.Restart)
}

// RequestStatus asks for the general status report
// @Summary Request device status
// @Tags Commands
// @Produce json
// @Success 202 {object} utils.APIResponse{data=CommandResult} "Command sent"
// @Failure 409 {object} utils.APIResponse "Session is not connected"
// @Router /session/status [post]
func (h *CommandHandler) RequestStatus(c *gin.Context) {
	h.dispatch(c, model.CmdStatus, h.session.RequestStatus)
}

// PollStatus sends one round of status poll commands
// @Summary Poll telemetry now
// @Tags Commands
// @Produce json
// @Success 202 {object} utils.APIResponse{data=CommandResult} "Commands sent"
// @Failure 409 {object} utils.APIResponse "Session is not connected"
// @Router /session/poll [post]
func (h *CommandHandler) PollStatus(c *gin.Context) {
	h.dispatch(c, "poll", h.session.PollStatus)
}

// dispatch runs send and maps the outcome. A command issued while not
// connected still goes through the session so the refusal is emitted as an event.
func (h *CommandHandler) dispatch(c *gin.Context, command string, send func(ctx context.Context) error) {
	state := h.session.State()

	err := send(c.Request.Context())
	switch {
	case errors.Is(err, session.ErrSessionClosed):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Session closed", err)
	case errors.Is(err, session.ErrInvalidCommand):
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid command", err)
	case errors.Is(err, context.DeadlineExceeded):
		utils.ErrorResponse(c, http.StatusGatewayTimeout, "Command timed out", err)
	case err != nil && state == model.StateConnected:
		h.logger.Error("Failed to send command", zap.String("command", command), zap.Error(err))
		utils.ErrorResponse(c, http.StatusBadGateway, "Failed to send command", err)
	case err != nil:
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid command", err)
	case state != model.StateConnected:
		utils.NotConnectedResponse(c, command, state)
	default:
		utils.SuccessResponse(c, http.StatusAccepted, "Command sent", &CommandResult{
			Command: command,
			State:   h.session.State(),
		})
	}
}
