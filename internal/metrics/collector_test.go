package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-session/internal/model"
)

func emit(c *Collector, p model.Payload) {
	c.OnEvent(model.Event{Kind: p.Kind(), Payload: p})
}

func TestCollector_TracksState(t *testing.T) {
	c := NewCollector()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("DISCONNECTED")))

	emit(c, &model.StateChange{From: model.StateDisconnected, To: model.StateConnecting})
	emit(c, &model.StateChange{From: model.StateConnecting, To: model.StateConnected})

	assert.Equal(t, 0.0, testutil.ToFloat64(c.state.WithLabelValues("DISCONNECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("CONNECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("CONNECTING", "CONNECTED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues(string(model.EventStateChanged))))
}

func TestCollector_CountsFailures(t *testing.T) {
	c := NewCollector()

	emit(c, &model.TransportError{Op: "read", Class: "LINK_LOST", Fatal: true})
	emit(c, &model.ConnectionLost{Class: "LINK_LOST"})
	emit(c, &model.RetryExhausted{Attempts: 3})
	emit(c, &model.NotConnected{Command: "STATUS"})
	emit(c, &model.RawLine{Text: "boot"})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transportErrors.WithLabelValues("read", "LINK_LOST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionLoss))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retryExhausted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.droppedCommands))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues(string(model.EventRawLine))))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.RecordHTTPRequest(http.MethodGet, "/api/v1/session", http.StatusOK, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "device_session_state")
	assert.Contains(t, body, `device_session_http_requests_total{method="GET",path="/api/v1/session",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
