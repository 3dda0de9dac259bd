// internal/session/config.go
package session

import (
	"fmt"
	"time"

	"device-session/internal/framing"
	"device-session/internal/health"
	"device-session/internal/model"
)

// Config configures a session
type Config struct {
	// Retry policy for connect attempts
	MaxRetryAttempts int
	RetryDelay       time.Duration

	// AutoReconnect re-enters Connecting after a connection loss instead of
	// settling in Disconnected
	AutoReconnect bool

	ProbeInterval time.Duration
	PollInterval  time.Duration
	PollCommands  []string

	MaxLineLength  int
	ReadBufferSize int
	// ReadErrorBackoff is the pause after a non-fatal read error
	ReadErrorBackoff time.Duration

	// AutoLoadConfig requests CONFIG_SCHEMA AutoLoadDelay after connecting
	AutoLoadConfig bool
	AutoLoadDelay  time.Duration
}

// DefaultConfig returns the web client's timings
func DefaultConfig() Config {
	return Config{
		MaxRetryAttempts: 3,
		RetryDelay:       2 * time.Second,
		ProbeInterval:    health.DefaultProbeInterval,
		PollInterval:     health.DefaultPollInterval,
		PollCommands:     append([]string(nil), model.StatusPollCommands...),
		MaxLineLength:    framing.DefaultMaxLineLength,
		ReadBufferSize:   1024,
		ReadErrorBackoff: 100 * time.Millisecond,
		AutoLoadConfig:   true,
		AutoLoadDelay:    2 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("max retry attempts must be at least 1, got %d", c.MaxRetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative")
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("read buffer size must be positive, got %d", c.ReadBufferSize)
	}
	if c.MaxLineLength < 0 {
		return fmt.Errorf("max line length must not be negative")
	}
	return nil
}

// RetryPolicy returns the retry part of the configuration
func (c Config) RetryPolicy() model.RetryPolicy {
	return model.RetryPolicy{MaxAttempts: c.MaxRetryAttempts, Delay: c.RetryDelay}
}
