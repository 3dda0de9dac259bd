// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"device-session/internal/model"
	"device-session/internal/utils"
)

const (
	clientSendBuffer = 256
	pongWait         = 60 * time.Second
	pingPeriod       = 54 * time.Second
	writeWait        = 10 * time.Second
	commandTimeout   = 10 * time.Second
)

// WebSocketHandler streams session events to WebSocket clients and accepts
// commands from them. It is a session listener.
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	session     SessionService
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(session SessionService, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		session:     session,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventConnection)
	router.GET("/stats", h.GetConnectionStats)
}

// HandleEventConnection upgrades to a WebSocket streaming session events
// @Summary Session event stream
// @Description Upgrade to a WebSocket that receives session events. kinds limits the stream to a comma separated list of event kinds.
// @Tags WebSocket
// @Param kinds query string false "Event kinds, e.g. IO_STATUS,STATE_CHANGED"
// @Success 101 "Switching Protocols"
// @Router /ws/events [get]
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, clientSendBuffer),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}
	if kinds := ParseKinds(c.Query("kinds")); len(kinds) > 0 {
		client.Subscribe(kinds...)
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
		zap.Any("kinds", client.Subscriptions()),
	)

	h.sendInitialStatus(client)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// GetConnectionStats lists connected WebSocket clients
// @Summary WebSocket client list
// @Tags WebSocket
// @Produce json
// @Success 200 {object} utils.APIResponse{data=ConnectionStats}
// @Router /ws/stats [get]
func (h *WebSocketHandler) GetConnectionStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "WebSocket clients retrieved", h.connections.GetStats())
}

// OnEvent forwards one session event to subscribed clients
func (h *WebSocketHandler) OnEvent(event model.Event) {
	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      "session_event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal session event", zap.Error(err), zap.String("kind", string(event.Kind)))
		return
	}

	for _, id := range h.connections.Broadcast(event.Kind, messageBytes) {
		h.logger.Warn("Client send channel full during broadcast",
			zap.String("client_id", id),
			zap.Uint64("sequence", event.Sequence),
		)
	}
}

// Close disconnects every client
func (h *WebSocketHandler) Close() {
	h.connections.CloseAll()
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
		h.logger.Info("Event WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "", "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe":
		kinds := messageKinds(message)
		client.Subscribe(kinds...)
		h.sendMessage(client, &WebSocketMessage{
			Type:      "subscription_confirmed",
			Data:      map[string]interface{}{"kinds": client.Subscriptions()},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	case "unsubscribe":
		client.Unsubscribe(messageKinds(message)...)
	case "command":
		go h.handleCommand(client, message)
	case "session":
		go h.handleSessionAction(client, message)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, message.RequestID, fmt.Sprintf("unknown message type: %s", message.Type))
	}
}

// messageKinds reads {"kinds": "A,B"} or {"kinds": ["A", "B"]}
func messageKinds(message *WebSocketMessage) []model.EventKind {
	data, ok := message.Data.(map[string]interface{})
	if !ok {
		return nil
	}
	switch v := data["kinds"].(type) {
	case string:
		return ParseKinds(v)
	case []interface{}:
		var kinds []model.EventKind
		for _, item := range v {
			if s, ok := item.(string); ok {
				kinds = append(kinds, ParseKinds(s)...)
			}
		}
		return kinds
	}
	return nil
}

// handleCommand sends a raw device command
func (h *WebSocketHandler) handleCommand(client *Client, message *WebSocketMessage) {
	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, message.RequestID, "invalid command data")
		return
	}
	command, ok := data["command"].(string)
	if !ok || command == "" {
		h.sendError(client, message.RequestID, "command is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	state := h.session.State()
	err := h.session.Send(ctx, command)
	h.sendCommandResponse(client, message.RequestID, command, state == model.StateConnected && err == nil, err)
}

// handleSessionAction runs connect, disconnect, reset or diagnostics
func (h *WebSocketHandler) handleSessionAction(client *Client, message *WebSocketMessage) {
	data, _ := message.Data.(map[string]interface{})
	action, _ := data["action"].(string)

	switch action {
	case "connect":
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		state := h.session.Connect(ctx)
		h.sendCommandResult(client, message.RequestID, action, map[string]interface{}{"state": state})
	case "disconnect":
		h.session.Disconnect()
		h.sendCommandResult(client, message.RequestID, action, map[string]interface{}{"state": h.session.State()})
	case "reset":
		reason, _ := data["reason"].(string)
		if reason == "" {
			reason = "websocket request"
		}
		h.session.ForceReset(reason)
		h.sendCommandResult(client, message.RequestID, action, map[string]interface{}{"state": h.session.State()})
	case "diagnostics":
		h.sendCommandResult(client, message.RequestID, action, h.session.Diagnostics())
	default:
		h.sendError(client, message.RequestID, fmt.Sprintf("unknown session action: %q", action))
	}
}

func (h *WebSocketHandler) sendCommandResult(client *Client, requestID, action string, result interface{}) {
	h.sendMessage(client, &WebSocketMessage{
		Type: "command_response",
		Data: map[string]interface{}{
			"command": action,
			"success": true,
			"result":  result,
		},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

func (h *WebSocketHandler) sendCommandResponse(client *Client, requestID, command string, sent bool, err error) {
	data := map[string]interface{}{
		"command": command,
		"success": sent,
		"state":   h.session.State(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	h.sendMessage(client, &WebSocketMessage{
		Type:      "command_response",
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// sendInitialStatus sends the session diagnostics to a new client
func (h *WebSocketHandler) sendInitialStatus(client *Client) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      h.session.Diagnostics(),
		Timestamp: time.Now(),
	})
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.Deliver(client, messageBytes) {
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
			zap.String("type", message.Type),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, requestID, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type: "error",
		Data: map[string]interface{}{
			"error": errorMsg,
		},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}
