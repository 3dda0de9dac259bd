// internal/session/session.go
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"device-session/internal/framing"
	"device-session/internal/health"
	"device-session/internal/model"
	"device-session/internal/protocol"
	"device-session/internal/utils"
)

// ErrSessionClosed is returned by operations on a closed session
var ErrSessionClosed = errors.New("session closed")

// ErrInvalidCommand is returned by Send for a command that is not a single line
var ErrInvalidCommand = errors.New("invalid command")

// TransportFactory creates a fresh, unopened transport for each connection attempt
type TransportFactory interface {
	NewTransport(ctx context.Context) (protocol.Transport, error)
	Describe() (model.TransportType, string)
}

// Session owns one device link: its connection state, transport, decode buffer
// and health monitor. All mutable state is guarded by mutex; writes to the
// transport are serialized by writeMutex, which is always taken before mutex.
type Session struct {
	id      string
	config  Config
	factory TransportFactory
	logger  *utils.SessionLogger
	bus     *EventBus
	now     func() time.Time

	// baseCtx outlives individual requests; it parents read loops and retries
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mutex      sync.Mutex
	writeMutex sync.Mutex

	state      model.ConnectionState
	epoch      uint64
	sequence   uint64
	retryCount int
	lastError  string
	closed     bool

	conn     *connection
	retry    *time.Timer
	teardown chan struct{}

	connectedAt   time.Time
	lastActivity  time.Time
	linesReceived uint64
	bytesReceived uint64
	commandsSent  uint64
	pollCount     uint64
	probeCount    uint64
}

// connection groups the resources that exist only while Connected
type connection struct {
	epoch      uint64
	transport  protocol.Transport
	framer     *framing.LineFramer
	monitor    *health.Monitor
	readCancel context.CancelFunc
	readDone   chan struct{}
	autoLoad   *time.Timer
}

// New creates a disconnected session
func New(config Config, factory TransportFactory, logger *zap.Logger) *Session {
	id := uuid.New().String()
	transportType, address := factory.Describe()

	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &Session{
		id:         id,
		config:     config,
		factory:    factory,
		logger:     utils.NewSessionLogger(logger, id, string(transportType), address),
		bus:        NewEventBus(logger.With(zap.String("component", "event_bus"), zap.String("session_id", id))),
		now:        time.Now,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		state:      model.StateDisconnected,
	}
}

// ID returns the session identifier carried by every event
func (s *Session) ID() string {
	return s.id
}

// State returns the current connection state
func (s *Session) State() model.ConnectionState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Subscribe registers a listener for all session events and returns a function
// that removes it
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	return s.bus.Subscribe(l)
}

// Diagnostics returns a snapshot of the session
func (s *Session) Diagnostics() model.Diagnostics {
	transportType, address := s.factory.Describe()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	d := model.Diagnostics{
		SessionID:     s.id,
		State:         s.state,
		TransportType: transportType,
		Address:       address,
		RetryCount:    s.retryCount,
		RetryPolicy:   s.config.RetryPolicy(),
		AutoReconnect: s.config.AutoReconnect,
		LinesReceived: s.linesReceived,
		BytesReceived: s.bytesReceived,
		CommandsSent:  s.commandsSent,
		ProbeCount:    s.probeCount,
		PollCount:     s.pollCount,
		EventsEmitted: s.sequence,
		ListenerCount: s.bus.ListenerCount(),
	}

	if s.conn != nil {
		d.Address = s.conn.transport.Address()
		d.PendingBytes = s.conn.framer.Pending()
		d.MonitorRunning = s.conn.monitor.Running()
		if sp, ok := s.conn.transport.(protocol.StatsProvider); ok {
			stats := sp.Stats()
			d.BytesWritten = stats.BytesWritten
			d.TransportErrs = stats.ErrorCount
		}
	}
	if !s.connectedAt.IsZero() && s.state == model.StateConnected {
		connectedAt := s.connectedAt
		d.ConnectedAt = &connectedAt
	}
	if !s.lastActivity.IsZero() {
		lastActivity := s.lastActivity
		d.LastActivity = &lastActivity
	}

	return d
}

// Close disconnects, flushes pending events to listeners and releases the session.
// The session cannot be reused.
func (s *Session) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.mutex.Unlock()

	s.Disconnect()

	s.baseCancel()
	s.bus.Close()
	return nil
}

// emitLocked stamps and publishes an event. The caller holds s.mutex, which
// makes sequence order equal to the order of the state changes that caused them.
func (s *Session) emitLocked(p model.Payload) {
	s.sequence++
	s.bus.Publish(model.Event{
		ID:        uuid.New(),
		SessionID: s.id,
		Sequence:  s.sequence,
		Kind:      p.Kind(),
		Severity:  model.SeverityOf(p),
		Timestamp: s.now(),
		Payload:   p,
	})
}

// reportTransportErrorLocked emits a TransportError event for err
func (s *Session) reportTransportErrorLocked(op string, err error) {
	payload := &model.TransportError{
		Op:      op,
		Class:   string(protocol.KindOf(err)),
		Message: err.Error(),
		Fatal:   protocol.IsFatal(err),
	}

	var te *protocol.TransportError
	if errors.As(err, &te) {
		payload.Hint = te.Hint()
	}

	s.lastError = err.Error()
	s.logger.LogTransportError(op, payload.Class, payload.Fatal, err)
	s.emitLocked(payload)
}

// currentLocked reports whether epoch still identifies the live connection
func (s *Session) currentLocked(epoch uint64) bool {
	return s.conn != nil && s.conn.epoch == epoch && s.state == model.StateConnected
}
