package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-session/internal/config"
	"device-session/internal/discovery"
	"device-session/internal/model"
	"device-session/internal/protocol"
	"device-session/internal/protocol/protocoltest"
	"device-session/internal/session"
)

const (
	waitFor = time.Second
	tick    = 2 * time.Millisecond
)

type eventLog struct {
	mu     sync.Mutex
	events []model.Event
}

func (l *eventLog) OnEvent(event model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) count(kind model.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type fakeScanner struct {
	kind    string
	devices []*discovery.DiscoveredDevice
	err     error
}

func (f *fakeScanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	return f.devices, f.err
}
func (f *fakeScanner) GetScannerType() string { return f.kind }
func (f *fakeScanner) IsAvailable() bool      { return true }

type testEnv struct {
	router  *gin.Engine
	session *session.Session
	factory *protocoltest.Factory
	events  *eventLog
}

func sessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.ProbeInterval = -1
	cfg.PollInterval = -1
	cfg.AutoLoadConfig = false
	return cfg
}

func newTestEnv(t *testing.T, cfg session.Config, factory *protocoltest.Factory) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	s := session.New(cfg, factory, logger)
	events := &eventLog{}
	s.Subscribe(events)
	t.Cleanup(func() { s.Close() })

	scanners := discovery.NewScannerManager(logger)
	scanners.RegisterScanner(&fakeScanner{kind: "serial", devices: []*discovery.DiscoveredDevice{
		{Transport: model.TransportTypeSerial, Address: "/dev/ttyS0", Confidence: 0.05},
		{Transport: model.TransportTypeSerial, Address: "/dev/ttyUSB0", Bridge: "CP210x", Confidence: 0.9},
	}})
	scanners.RegisterScanner(&fakeScanner{kind: "tcp", err: errors.New("unreachable")})

	appConfig := &config.Config{App: config.AppConfig{Name: "device-session", Version: "test"}}

	router := gin.New()
	NewHealthHandler(s, appConfig, logger).RegisterRoutes(&router.RouterGroup)
	api := router.Group("/api/v1")
	NewSessionHandler(s, logger).RegisterRoutes(api)
	NewCommandHandler(s, logger).RegisterRoutes(api)
	NewDiscoveryHandler(scanners, logger).RegisterRoutes(api)

	return &testEnv{router: router, session: s, factory: factory, events: events}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Details string `json:"details"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp apiResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestSessionHandler_GetSession(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())

	rec, resp := env.do(t, http.MethodGet, "/api/v1/session", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status SessionStatus
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, env.session.ID(), status.SessionID)
	assert.Equal(t, model.StateDisconnected, status.State)
	assert.Equal(t, "fake0", status.Address)
}

func TestSessionHandler_ConnectAndDisconnect(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())

	rec, resp := env.do(t, http.MethodPost, "/api/v1/session/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(resp.Data), `"CONNECTED"`)
	assert.Equal(t, model.StateConnected, env.session.State())

	rec, resp = env.do(t, http.MethodPost, "/api/v1/session/connect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/session/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StateDisconnected, env.session.State())
	assert.Equal(t, 0, env.factory.OpenCount())
}

func TestSessionHandler_ConnectFailure(t *testing.T) {
	cfg := sessionConfig()
	cfg.MaxRetryAttempts = 1
	notFound := protocol.NewTransportError(protocol.KindNotFound, protocol.OpOpen, errors.New("no such file"))
	env := newTestEnv(t, cfg, protocoltest.NewFactory(notFound))

	rec, resp := env.do(t, http.MethodPost, "/api/v1/session/connect", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TRANSPORT_ERROR", resp.Error.Code)
	assert.Equal(t, model.StateFailed, env.session.State())

	rec, _ = env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionHandler_ConnectInProgress(t *testing.T) {
	notFound := protocol.NewTransportError(protocol.KindNotFound, protocol.OpOpen, errors.New("no such file"))
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory(notFound))

	rec, resp := env.do(t, http.MethodPost, "/api/v1/session/connect", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, resp.Success)

	require.Eventually(t, func() bool {
		return env.session.State() == model.StateConnected
	}, waitFor, tick)
}

func TestSessionHandler_ForceReset(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())
	require.Equal(t, model.StateConnected, env.session.Connect(context.Background()))

	rec, _ := env.do(t, http.MethodPost, "/api/v1/session/reset", `{"reason":"stuck"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StateDisconnected, env.session.State())

	rec, _ = env.do(t, http.MethodPost, "/api/v1/session/reset", `{bad`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_Diagnostics(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())
	require.Equal(t, model.StateConnected, env.session.Connect(context.Background()))

	rec, resp := env.do(t, http.MethodGet, "/api/v1/session/diagnostics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var d map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &d))
	assert.Equal(t, "CONNECTED", d["state"])
	assert.Equal(t, env.session.ID(), d["session_id"])
}

func TestCommandHandler_SendWhileDisconnected(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())

	rec, resp := env.do(t, http.MethodPost, "/api/v1/session/commands", `{"command":"STATUS"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_CONNECTED", resp.Error.Code)

	require.Eventually(t, func() bool {
		return env.events.count(model.EventNotConnected) == 1
	}, waitFor, tick)
}

func TestCommandHandler_SendCommand(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())
	require.Equal(t, model.StateConnected, env.session.Connect(context.Background()))

	rec, _ := env.do(t, http.MethodPost, "/api/v1/session/commands", `{"command":"IO_STATUS"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"IO_STATUS\n"}, env.factory.Last().Writes())
}

func TestCommandHandler_RejectsInvalidCommands(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())
	require.Equal(t, model.StateConnected, env.session.Connect(context.Background()))

	tests := []struct {
		name string
		body string
	}{
		{"missing command", `{}`},
		{"blank command", `{"command":"   "}`},
		{"embedded newline", `{"command":"STATUS\nRESTART"}`},
		{"malformed json", `{"command":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := env.do(t, http.MethodPost, "/api/v1/session/commands", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, env.factory.Last().Writes())
}

func TestCommandHandler_Helpers(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())
	require.Equal(t, model.StateConnected, env.session.Connect(context.Background()))

	for _, path := range []string{"/config/schema", "/config/load", "/status", "/restart"} {
		rec, _ := env.do(t, http.MethodPost, "/api/v1/session"+path, "")
		require.Equal(t, http.StatusAccepted, rec.Code, path)
	}

	rec, _ := env.do(t, http.MethodPut, "/api/v1/session/config", `{"values":{"hid":3}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec, _ = env.do(t, http.MethodPut, "/api/v1/session/config", `{"values":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []string{
		"CONFIG_SCHEMA\n",
		"CONFIG_LOAD\n",
		"STATUS\n",
		"RESTART\n",
		`CONFIG_SAVE {"hid":3}` + "\n",
	}, env.factory.Last().Writes())
}

func TestCommandHandler_PollStatus(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())
	require.Equal(t, model.StateConnected, env.session.Connect(context.Background()))

	rec, _ := env.do(t, http.MethodPost, "/api/v1/session/poll", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	writes := env.factory.Last().Writes()
	require.Len(t, writes, len(model.StatusPollCommands))
	for i, command := range model.StatusPollCommands {
		assert.Equal(t, command+"\n", writes[i])
	}
}

func TestCommandHandler_TransportFailure(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())
	require.Equal(t, model.StateConnected, env.session.Connect(context.Background()))
	env.factory.Last().SetWriteError(protocol.NewTransportError(protocol.KindOther, protocol.OpWrite, errors.New("timeout")))

	rec, resp := env.do(t, http.MethodPost, "/api/v1/session/commands", `{"command":"STATUS"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Details, "timeout")
}

func TestCommandHandler_SessionClosed(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())
	require.NoError(t, env.session.Close())

	rec, _ := env.do(t, http.MethodPost, "/api/v1/session/commands", `{"command":"STATUS"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())

	rec, _ := env.do(t, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	rec, _ = env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "DISCONNECTED", health.Checks["session"].Message)

	require.Equal(t, model.StateConnected, env.session.Connect(context.Background()))
	rec, _ = env.do(t, http.MethodGet, "/health", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestDiscoveryHandler_ListPorts(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())

	rec, resp := env.do(t, http.MethodGet, "/api/v1/ports", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		DevicesFound int                           `json:"devices_found"`
		Devices      []*discovery.DiscoveredDevice `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Equal(t, 2, data.DevicesFound)
	assert.Equal(t, "/dev/ttyUSB0", data.Devices[0].Address)
	assert.Equal(t, "CP210x", data.Devices[0].Bridge)
}

func TestDiscoveryHandler_Scan(t *testing.T) {
	env := newTestEnv(t, sessionConfig(), protocoltest.NewFactory())

	rec, _ := env.do(t, http.MethodGet, "/api/v1/discovery/scan", "")
	assert.Equal(t, http.StatusOK, rec.Code, "a failing scanner is skipped by a full scan")

	rec, _ = env.do(t, http.MethodGet, "/api/v1/discovery/scan?type=tcp", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/discovery/scan?type=bluetooth", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/discovery/scan?timeout=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/discovery/scanners", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"scanners":["serial","tcp"]}`, string(resp.Data))
}
