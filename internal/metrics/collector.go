// internal/metrics/collector.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"device-session/internal/model"
)

const namespace = "device_session"

var allStates = []model.ConnectionState{
	model.StateDisconnected,
	model.StateConnecting,
	model.StateConnected,
	model.StateReconnecting,
	model.StateFailed,
}

// Collector turns session events into prometheus metrics. It is a session listener.
type Collector struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	state           *prometheus.GaugeVec
	transportErrors *prometheus.CounterVec
	connectionLoss  prometheus.Counter
	retryExhausted  prometheus.Counter
	droppedCommands prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry, including Go runtime metrics
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Session events emitted, by kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Connection state transitions.",
		}, []string{"from", "to"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "errors_total",
			Help:      "Transport errors by operation and class.",
		}, []string{"op", "class"}),
		connectionLoss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_lost_total",
			Help:      "Connections lost after being established.",
		}),
		retryExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Connect cycles that ran out of attempts.",
		}),
		droppedCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_dropped_total",
			Help:      "Commands refused because the session was not connected.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	c.registry.MustRegister(
		c.events,
		c.transitions,
		c.state,
		c.transportErrors,
		c.connectionLoss,
		c.retryExhausted,
		c.droppedCommands,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.setState(model.StateDisconnected)

	return c
}

// OnEvent records one session event
func (c *Collector) OnEvent(event model.Event) {
	c.events.WithLabelValues(string(event.Kind)).Inc()

	switch p := event.Payload.(type) {
	case *model.StateChange:
		c.transitions.WithLabelValues(p.From.String(), p.To.String()).Inc()
		c.setState(p.To)
	case *model.TransportError:
		c.transportErrors.WithLabelValues(p.Op, p.Class).Inc()
	case *model.ConnectionLost:
		c.connectionLoss.Inc()
	case *model.RetryExhausted:
		c.retryExhausted.Inc()
	case *model.NotConnected:
		c.droppedCommands.Inc()
	}
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	c.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	c.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// Handler serves the registry in the prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) setState(current model.ConnectionState) {
	for _, s := range allStates {
		value := 0.0
		if s == current {
			value = 1
		}
		c.state.WithLabelValues(s.String()).Set(value)
	}
}
