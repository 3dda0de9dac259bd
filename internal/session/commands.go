// internal/session/commands.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"device-session/internal/model"
	"device-session/internal/protocol"
)

// Send writes one command line. Trailing line terminators are normalized to a
// single "\n". A command that is empty or spans several lines is rejected with
// ErrInvalidCommand and a CommandRejected event. When the session is not
// Connected nothing is written, a NotConnected event is emitted and nil is returned.
func (s *Session) Send(ctx context.Context, command string) error {
	command = strings.TrimRight(command, "\r\n")

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return ErrSessionClosed
	}
	if reason := commandProblem(command); reason != "" {
		s.emitLocked(&model.CommandRejected{Command: command, Reason: reason})
		s.mutex.Unlock()
		s.logger.Warn("Command rejected", zap.String("command", command), zap.String("reason", reason))
		return fmt.Errorf("%w: %s", ErrInvalidCommand, reason)
	}
	conn := s.conn
	if s.state != model.StateConnected || conn == nil {
		s.emitLocked(&model.NotConnected{Command: command, State: s.state})
		s.logger.Warn("Command dropped, session not connected",
			zap.String("command", command),
			zap.String("state", s.state.String()),
		)
		s.mutex.Unlock()
		return nil
	}
	s.mutex.Unlock()

	return s.write(ctx, conn, command, true)
}

// commandProblem describes why command cannot go on the wire, or returns ""
func commandProblem(command string) string {
	switch {
	case strings.TrimSpace(command) == "":
		return "command is empty"
	case strings.ContainsAny(command, "\r\n"):
		return "command contains a line terminator"
	}
	return ""
}

// write sends command on conn if conn is still the live connection. Stale
// connections are skipped, with a NotConnected event when notify is set.
func (s *Session) write(ctx context.Context, conn *connection, command string, notify bool) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	s.mutex.Lock()
	if !s.currentLocked(conn.epoch) {
		if notify {
			s.emitLocked(&model.NotConnected{Command: command, State: s.state})
		}
		s.mutex.Unlock()
		return nil
	}
	s.mutex.Unlock()

	err := conn.transport.Write(ctx, []byte(command+model.LineTerminator))
	s.logger.LogCommand(command, err)

	if err == nil {
		s.mutex.Lock()
		s.commandsSent++
		s.mutex.Unlock()
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	err = protocol.ClassifyError(protocol.OpWrite, err)
	if protocol.IsFatal(err) {
		s.connectionLost(conn, protocol.OpWrite, err)
		return err
	}

	s.mutex.Lock()
	if s.currentLocked(conn.epoch) {
		s.reportTransportErrorLocked(protocol.OpWrite, err)
	}
	s.mutex.Unlock()
	return err
}

// probe is the monitor's liveness check for conn
func (s *Session) probe(ctx context.Context, conn *connection) error {
	err := conn.transport.Probe(ctx)

	s.mutex.Lock()
	if s.currentLocked(conn.epoch) {
		s.probeCount++
		if err == nil {
			s.lastActivity = s.now()
		}
	}
	s.mutex.Unlock()

	return err
}

// poll sends the configured poll commands in order on conn
func (s *Session) poll(ctx context.Context, conn *connection) {
	s.mutex.Lock()
	if !s.currentLocked(conn.epoch) {
		s.mutex.Unlock()
		return
	}
	s.pollCount++
	s.mutex.Unlock()

	for _, command := range s.config.PollCommands {
		if err := s.write(ctx, conn, command, false); err != nil {
			return
		}
	}
}

// RequestConfigSchema asks the device for its configuration schema
func (s *Session) RequestConfigSchema(ctx context.Context) error {
	return s.Send(ctx, model.CmdConfigSchema)
}

// LoadConfig asks the device for its current configuration
func (s *Session) LoadConfig(ctx context.Context) error {
	return s.Send(ctx, model.CmdConfigLoad)
}

// SaveConfig sends values as a single-line CONFIG_SAVE command
func (s *Session) SaveConfig(ctx context.Context, values map[string]interface{}) error {
	if len(values) == 0 {
		return fmt.Errorf("configuration values are required")
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	return s.Send(ctx, model.CmdConfigSave+" "+string(data))
}

// Restart asks the device to reboot
func (s *Session) Restart(ctx context.Context) error {
	return s.Send(ctx, model.CmdRestart)
}

// RequestStatus asks for the device's general status report
func (s *Session) RequestStatus(ctx context.Context) error {
	return s.Send(ctx, model.CmdStatus)
}

// PollStatus sends one round of status poll commands immediately
func (s *Session) PollStatus(ctx context.Context) error {
	for _, command := range s.config.PollCommands {
		if err := s.Send(ctx, command); err != nil {
			return err
		}
	}
	return nil
}
