// internal/session/connect.go
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"device-session/internal/framing"
	"device-session/internal/health"
	"device-session/internal/model"
	"device-session/internal/protocol"
)

// Connect starts a connection cycle. It is a no-op returning the current state
// unless the session is Disconnected or Failed. The first attempt runs before
// Connect returns; retries run in the background after RetryDelay.
func (s *Session) Connect(ctx context.Context) model.ConnectionState {
	s.mutex.Lock()
	if s.closed || !s.state.CanConnect() {
		state := s.state
		s.mutex.Unlock()
		return state
	}

	s.epoch++
	epoch := s.epoch
	s.retryCount = 0
	s.lastError = ""
	s.transitionLocked(model.StateConnecting, "connect requested", 1)
	s.mutex.Unlock()

	s.attempt(ctx, epoch)
	return s.State()
}

// Disconnect releases the link from any state. It cancels a pending retry, stops
// both monitor tasks, cancels the read loop, waits for in-flight writes, closes the
// transport and only then returns. Calling it again is harmless.
func (s *Session) Disconnect() {
	s.reset("disconnect requested")
}

// ForceReset drops to Disconnected from any state after an unrecoverable local error
func (s *Session) ForceReset(reason string) {
	s.logger.Warn("Forcing session reset", zap.String("reason", reason))
	s.reset("forced reset: " + reason)
}

func (s *Session) reset(reason string) {
	s.mutex.Lock()
	conn := s.detachLocked()
	s.retryCount = 0
	if s.state != model.StateDisconnected {
		s.transitionLocked(model.StateDisconnected, reason, 0)
	}
	pending := s.teardown
	s.mutex.Unlock()

	s.release(conn)
	if pending != nil {
		<-pending
	}
}

// attempt runs one acquisition of the transport for the connect cycle identified by epoch
func (s *Session) attempt(ctx context.Context, epoch uint64) {
	s.mutex.Lock()
	pending := s.teardown
	s.mutex.Unlock()

	// the previous transport must be closed before another one is opened
	if pending != nil {
		select {
		case <-pending:
		case <-ctx.Done():
		}
	}

	transport, err := s.factory.NewTransport(ctx)
	if err == nil {
		err = transport.Open(ctx)
	}
	if err != nil {
		err = protocol.ClassifyError(protocol.OpOpen, err)
	}

	s.mutex.Lock()
	if s.epoch != epoch || s.state != model.StateConnecting {
		// disconnected while the open was in flight
		s.mutex.Unlock()
		if err == nil {
			transport.Close()
		}
		return
	}

	if err != nil {
		s.attemptFailedLocked(err)
	} else {
		s.establishLocked(transport, epoch)
	}
	s.mutex.Unlock()
}

func (s *Session) attemptFailedLocked(err error) {
	s.retryCount++
	s.reportTransportErrorLocked(protocol.OpOpen, err)

	if s.retryCount < s.config.MaxRetryAttempts {
		s.transitionLocked(model.StateReconnecting, fmt.Sprintf("attempt %d failed", s.retryCount), s.retryCount)
		s.scheduleRetryLocked()
		return
	}

	attempts := s.retryCount
	s.retryCount = 0
	s.transitionLocked(model.StateFailed, "retry attempts exhausted", attempts)
	s.emitLocked(&model.RetryExhausted{Attempts: attempts, LastError: err.Error()})
}

func (s *Session) scheduleRetryLocked() {
	epoch := s.epoch
	s.retry = time.AfterFunc(s.config.RetryDelay, func() {
		s.retryAttempt(epoch)
	})
}

func (s *Session) retryAttempt(epoch uint64) {
	s.mutex.Lock()
	if s.epoch != epoch || s.state != model.StateReconnecting {
		s.mutex.Unlock()
		return
	}
	s.retry = nil
	s.transitionLocked(model.StateConnecting, "retry delay elapsed", s.retryCount+1)
	s.mutex.Unlock()

	s.attempt(s.baseCtx, epoch)
}

// establishLocked takes ownership of an opened transport and starts the read loop
// and the health monitor
func (s *Session) establishLocked(transport protocol.Transport, epoch uint64) {
	readCtx, readCancel := context.WithCancel(s.baseCtx)

	conn := &connection{
		epoch:      epoch,
		transport:  transport,
		framer:     framing.NewLineFramer(s.config.MaxLineLength),
		readCancel: readCancel,
		readDone:   make(chan struct{}),
	}
	conn.monitor = health.NewMonitor(
		health.Config{ProbeInterval: s.config.ProbeInterval, PollInterval: s.config.PollInterval},
		func(ctx context.Context) error { return s.probe(ctx, conn) },
		func(ctx context.Context) { s.poll(ctx, conn) },
		func(err error) {
			if !protocol.IsFatal(err) {
				err = protocol.NewTransportError(protocol.KindLinkLost, protocol.OpProbe, err)
			}
			s.connectionLost(conn, protocol.OpProbe, err)
		},
		s.logger.Logger,
	)

	now := s.now()
	s.conn = conn
	s.retryCount = 0
	s.connectedAt = now
	s.lastActivity = now
	s.transitionLocked(model.StateConnected, "transport opened", 0)

	go s.readLoop(readCtx, conn)
	conn.monitor.Start(readCtx)

	if s.config.AutoLoadConfig {
		conn.autoLoad = time.AfterFunc(s.config.AutoLoadDelay, func() {
			s.write(s.baseCtx, conn, model.CmdConfigSchema, false)
		})
	}
}

// connectionLost handles a fatal error on the live connection: Connected ->
// Reconnecting, then a retry when auto-reconnect is on, Disconnected otherwise.
// It may run on the read loop or a monitor goroutine, so teardown is asynchronous.
func (s *Session) connectionLost(conn *connection, op string, err error) {
	s.mutex.Lock()
	if !s.currentLocked(conn.epoch) {
		s.mutex.Unlock()
		return
	}

	s.reportTransportErrorLocked(op, err)
	s.detachLocked()

	s.transitionLocked(model.StateReconnecting, "connection lost during "+op, 0)
	s.emitLocked(&model.ConnectionLost{
		Reason:        err.Error(),
		Class:         string(protocol.KindOf(err)),
		AutoReconnect: s.config.AutoReconnect,
	})

	if s.config.AutoReconnect && !s.closed {
		s.scheduleRetryLocked()
	} else {
		s.transitionLocked(model.StateDisconnected, "connection lost", 0)
	}

	prev := s.teardown
	done := make(chan struct{})
	s.teardown = done
	s.mutex.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		s.release(conn)
	}()
}

// detachLocked invalidates every callback of the current connection and cycle and
// hands the connection back for release
func (s *Session) detachLocked() *connection {
	s.epoch++

	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}

	conn := s.conn
	s.conn = nil
	if conn != nil {
		if conn.autoLoad != nil {
			conn.autoLoad.Stop()
		}
		conn.monitor.Cancel()
		conn.readCancel()
	}
	return conn
}

// release tears a detached connection down: stop timers, cancel the read loop,
// release the writer, close the transport. Every step runs even if one fails.
func (s *Session) release(conn *connection) {
	if conn == nil {
		return
	}

	conn.monitor.Stop()
	conn.readCancel()

	s.writeMutex.Lock()
	//nolint:staticcheck // empty critical section waits out an in-flight write
	s.writeMutex.Unlock()

	if err := conn.transport.Close(); err != nil {
		s.logger.Warn("Failed to close transport", zap.Error(err))
	}

	<-conn.readDone
	s.logger.Debug("Connection released")
}
