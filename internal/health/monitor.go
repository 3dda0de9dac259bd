// internal/health/monitor.go
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultProbeInterval is the default liveness probe period
	DefaultProbeInterval = 5 * time.Second

	// DefaultPollInterval is the default status poll period
	DefaultPollInterval = 2 * time.Second
)

// Config configures the monitor periods. A zero period selects the default;
// a negative period disables that task.
type Config struct {
	ProbeInterval time.Duration
	PollInterval  time.Duration
}

// ProbeFunc checks the link; a non-nil error is a liveness failure
type ProbeFunc func(ctx context.Context) error

// PollFunc issues one round of status requests
type PollFunc func(ctx context.Context)

// FailureFunc is told about the first failed probe. It runs on the probe goroutine
// and must not call Stop.
type FailureFunc func(err error)

// Monitor runs the liveness probe and the status poll as two independent
// periodic tasks, bound to one connection
type Monitor struct {
	config    Config
	probe     ProbeFunc
	poll      PollFunc
	onFailure FailureFunc
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	probeCount   atomic.Uint64
	pollCount    atomic.Uint64
	failureCount atomic.Uint64
	lastProbe    atomic.Int64
}

// Stats contains monitor counters
type Stats struct {
	Running      bool      `json:"running"`
	ProbeCount   uint64    `json:"probe_count"`
	PollCount    uint64    `json:"poll_count"`
	FailureCount uint64    `json:"failure_count"`
	LastProbeOK  time.Time `json:"last_probe_ok,omitempty"`
}

// NewMonitor creates a stopped monitor. poll and onFailure may be nil.
func NewMonitor(config Config, probe ProbeFunc, poll PollFunc, onFailure FailureFunc, logger *zap.Logger) *Monitor {
	if config.ProbeInterval == 0 {
		config.ProbeInterval = DefaultProbeInterval
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}

	return &Monitor{
		config:    config,
		probe:     probe,
		poll:      poll,
		onFailure: onFailure,
		logger:    logger.With(zap.String("component", "health_monitor")),
	}
}

// Start launches both tasks. Starting a running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel

	if m.config.ProbeInterval > 0 && m.probe != nil {
		m.wg.Add(1)
		go m.probeLoop(ctx)
	}
	if m.config.PollInterval > 0 && m.poll != nil {
		m.wg.Add(1)
		go m.pollLoop(ctx)
	}

	m.logger.Debug("Health monitor started",
		zap.Duration("probe_interval", m.config.ProbeInterval),
		zap.Duration("poll_interval", m.config.PollInterval),
	)
}

// Stop cancels both tasks and waits for them to exit. Once Stop returns no probe
// or poll callback is running or will run.
func (m *Monitor) Stop() {
	m.Cancel()
	m.wg.Wait()
}

// Cancel cancels both tasks without waiting. Safe to call from a callback.
func (m *Monitor) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.running = false
	m.cancel()
	m.logger.Debug("Health monitor stopped")
}

// Running reports whether the tasks are active
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Stats returns a snapshot of the counters
func (m *Monitor) Stats() Stats {
	s := Stats{
		Running:      m.Running(),
		ProbeCount:   m.probeCount.Load(),
		PollCount:    m.pollCount.Load(),
		FailureCount: m.failureCount.Load(),
	}
	if ts := m.lastProbe.Load(); ts > 0 {
		s.LastProbeOK = time.Unix(0, ts)
	}
	return s
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a tick and cancellation can be ready together
			if ctx.Err() != nil {
				return
			}

			m.probeCount.Add(1)
			if err := m.probe(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.failureCount.Add(1)
				m.logger.Warn("Liveness probe failed", zap.Error(err))
				if m.onFailure != nil {
					m.onFailure(err)
				}
				return
			}
			m.lastProbe.Store(time.Now().UnixNano())
		}
	}
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			m.pollCount.Add(1)
			m.poll(ctx)
		}
	}
}
