package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-session/internal/model"
	"device-session/internal/protocol/protocoltest"
	"device-session/internal/session"
)

type wsEnv struct {
	session *session.Session
	factory *protocoltest.Factory
	handler *WebSocketHandler
	server  *httptest.Server
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	factory := protocoltest.NewFactory()
	s := session.New(sessionConfig(), factory, zap.NewNop())

	h := NewWebSocketHandler(s, nil, zap.NewNop())
	unsubscribe := s.Subscribe(h)

	router := gin.New()
	h.RegisterRoutes(router.Group("/ws"))
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		unsubscribe()
		h.Close()
		server.Close()
		s.Close()
	})
	return &wsEnv{session: s, factory: factory, handler: h, server: server}
}

func (e *wsEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func read(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips messages until one of type kind arrives
func readUntil(t *testing.T, conn *websocket.Conn, kind string) wsMessage {
	t.Helper()
	for {
		if msg := read(t, conn); msg.Type == kind {
			return msg
		}
	}
}

func TestWebSocket_InitialStatus(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, "")

	msg := read(t, conn)
	require.Equal(t, "initial_status", msg.Type)

	var d map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &d))
	assert.Equal(t, env.session.ID(), d["session_id"])
	assert.Equal(t, "DISCONNECTED", d["state"])
}

func TestWebSocket_StreamsFilteredEvents(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, "?kinds=state_changed")
	read(t, conn)

	require.Equal(t, model.StateConnected, env.session.Connect(context.Background()))
	env.factory.Last().Feed("boot log line\n")

	var states []string
	for len(states) < 2 {
		msg := readUntil(t, conn, "session_event")
		var event struct {
			Kind    model.EventKind `json:"kind"`
			Payload struct {
				To string `json:"to"`
			} `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &event))
		require.Equal(t, model.EventStateChanged, event.Kind)
		states = append(states, event.Payload.To)
	}
	assert.Equal(t, []string{"CONNECTING", "CONNECTED"}, states)
}

func TestWebSocket_PingAndSubscribe(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, "")
	read(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping", "request_id": "r1"}))
	msg := readUntil(t, conn, "pong")
	assert.Equal(t, "r1", msg.RequestID)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "subscribe",
		"data": map[string]interface{}{"kinds": []string{"IO_STATUS", "raw_line"}},
	}))
	msg = readUntil(t, conn, "subscription_confirmed")
	assert.Contains(t, string(msg.Data), "IO_STATUS")
	assert.Contains(t, string(msg.Data), "RAW_LINE")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "bogus"}))
	readUntil(t, conn, "error")
}

func TestWebSocket_SessionActionsAndCommands(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, "?kinds=NOT_CONNECTED")
	read(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "command", "request_id": "c1",
		"data": map[string]interface{}{"command": "STATUS"},
	}))
	msg := readUntil(t, conn, "command_response")
	assert.Equal(t, "c1", msg.RequestID)
	assert.Contains(t, string(msg.Data), `"success":false`)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "session", "request_id": "s1",
		"data": map[string]interface{}{"action": "connect"},
	}))
	msg = readUntil(t, conn, "command_response")
	assert.Equal(t, "s1", msg.RequestID)
	assert.Contains(t, string(msg.Data), `"CONNECTED"`)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "command", "request_id": "c2",
		"data": map[string]interface{}{"command": "IO_STATUS"},
	}))
	msg = readUntil(t, conn, "command_response")
	assert.Equal(t, "c2", msg.RequestID)
	assert.Contains(t, string(msg.Data), `"success":true`)
	assert.Equal(t, []string{"IO_STATUS\n"}, env.factory.Last().Writes())
}

func TestWebSocket_CommandCannotSmuggleSecondLine(t *testing.T) {
	env := newWSEnv(t)
	require.Equal(t, model.StateConnected, env.session.Connect(context.Background()))

	conn := env.dial(t, "?kinds=COMMAND_REJECTED")
	read(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "command", "request_id": "c1",
		"data": map[string]interface{}{"command": "STATUS\nRESTART"},
	}))
	// the reply and the event may arrive in either order
	got := map[string]wsMessage{}
	for len(got) < 2 {
		msg := read(t, conn)
		got[msg.Type] = msg
	}

	reply := got["command_response"]
	assert.Equal(t, "c1", reply.RequestID)
	assert.Contains(t, string(reply.Data), `"success":false`)
	assert.Contains(t, string(reply.Data), "invalid command")
	assert.Contains(t, string(got["session_event"].Data), "COMMAND_REJECTED")
	assert.Empty(t, env.factory.Last().Writes())
}

func TestConnectionManager(t *testing.T) {
	cm := NewConnectionManager()

	all := &Client{ID: "all", Send: make(chan []byte, 1)}
	io := &Client{ID: "io", Send: make(chan []byte, 1)}
	io.Subscribe(model.EventIOStatus)
	cm.Register(all)
	cm.Register(io)

	assert.Empty(t, cm.Broadcast(model.EventRawLine, []byte("a")))
	assert.Len(t, all.Send, 1)
	assert.Len(t, io.Send, 0)

	dropped := cm.Broadcast(model.EventIOStatus, []byte("b"))
	assert.Equal(t, []string{"all"}, dropped)
	assert.Len(t, io.Send, 1)

	assert.Equal(t, 2, cm.GetStats().TotalConnections)

	cm.Unregister(io)
	cm.Unregister(io)
	assert.False(t, cm.Deliver(io, []byte("c")))
	_, open := <-io.Send
	assert.True(t, open, "buffered message is still readable")
	_, open = <-io.Send
	assert.False(t, open)

	cm.CloseAll()
	assert.Equal(t, 0, cm.GetStats().TotalConnections)
}

func TestParseKinds(t *testing.T) {
	assert.Equal(t,
		[]model.EventKind{model.EventIOStatus, model.EventRawLine},
		ParseKinds(" io_status, RAW_LINE ,,"),
	)
	assert.Nil(t, ParseKinds(""))
}
