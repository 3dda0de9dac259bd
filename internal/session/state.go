// internal/session/state.go
package session

import (
	"go.uber.org/zap"

	"device-session/internal/model"
)

// validTransitions lists every allowed state change. Disconnected is reachable
// from every state through disconnect or forced reset.
var validTransitions = map[model.ConnectionState][]model.ConnectionState{
	model.StateDisconnected: {model.StateConnecting},
	model.StateConnecting:   {model.StateConnected, model.StateReconnecting, model.StateFailed, model.StateDisconnected},
	model.StateConnected:    {model.StateReconnecting, model.StateDisconnected},
	model.StateReconnecting: {model.StateConnecting, model.StateFailed, model.StateDisconnected},
	model.StateFailed:       {model.StateConnecting, model.StateDisconnected},
}

// CanTransition reports whether from -> to is an allowed transition
func CanTransition(from, to model.ConnectionState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transitionLocked moves the session to a new state and emits the change.
// The caller holds s.mutex.
func (s *Session) transitionLocked(to model.ConnectionState, reason string, attempt int) bool {
	from := s.state
	if !CanTransition(from, to) {
		s.logger.DPanic("Invalid state transition",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.String("reason", reason),
		)
		return false
	}

	s.state = to
	s.logger.LogTransition(from.String(), to.String(), reason, attempt)
	s.emitLocked(&model.StateChange{From: from, To: to, Reason: reason, Attempt: attempt})
	return true
}
