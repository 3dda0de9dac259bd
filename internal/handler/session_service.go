// internal/handler/session_service.go
package handler

import (
	"context"

	"device-session/internal/model"
	"device-session/internal/session"
)

// SessionService is the part of *session.Session the handlers drive
type SessionService interface {
	ID() string
	State() model.ConnectionState
	Diagnostics() model.Diagnostics
	Subscribe(l session.Listener) (unsubscribe func())

	Connect(ctx context.Context) model.ConnectionState
	Disconnect()
	ForceReset(reason string)

	Send(ctx context.Context, command string) error
	RequestConfigSchema(ctx context.Context) error
	LoadConfig(ctx context.Context) error
	SaveConfig(ctx context.Context, values map[string]interface{}) error
	Restart(ctx context.Context) error
	RequestStatus(ctx context.Context) error
	PollStatus(ctx context.Context) error
}

var _ SessionService = (*session.Session)(nil)
