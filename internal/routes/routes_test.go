package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-session/internal/config"
	"device-session/internal/discovery"
	"device-session/internal/metrics"
	"device-session/internal/protocol/protocoltest"
	"device-session/internal/session"
)

func testConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "device-session", Version: "test", Environment: "test"},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func TestSetupRouter(t *testing.T) {
	logger := zap.NewNop()
	s := session.New(session.DefaultConfig(), protocoltest.NewFactory(), logger)
	t.Cleanup(func() { s.Close() })

	collector := metrics.NewCollector()
	router := NewRouter(testConfig(), logger, s, discovery.NewScannerManager(logger), collector)
	engine := router.SetupRouter()
	t.Cleanup(router.Close)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/live", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/session", http.StatusOK},
		{http.MethodGet, "/api/v1/discovery/scanners", http.StatusOK},
		{http.MethodPost, "/api/v1/session/commands", http.StatusBadRequest},
		{http.MethodGet, "/ws/stats", http.StatusOK},
		{http.MethodGet, "/docs", http.StatusMovedPermanently},
		{http.MethodGet, "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, "%s %s", tt.method, tt.path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), tt.path)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `device_session_http_requests_total{method="GET",path="/api/v1/session",status="200"} 1`)
}

func TestSetupRouter_WithoutMetrics(t *testing.T) {
	logger := zap.NewNop()
	s := session.New(session.DefaultConfig(), protocoltest.NewFactory(), logger)
	t.Cleanup(func() { s.Close() })

	cfg := testConfig()
	cfg.Metrics.Enabled = false
	router := NewRouter(cfg, logger, s, discovery.NewScannerManager(logger), nil)
	engine := router.SetupRouter()
	t.Cleanup(router.Close)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
