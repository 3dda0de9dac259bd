// internal/model/connection.go
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TransportType represents how the device link is carried
type TransportType string

const (
	TransportTypeSerial TransportType = "SERIAL"
	TransportTypeUSB    TransportType = "USB"
	TransportTypeTCP    TransportType = "TCP"
)

// ParseTransportType converts a config value ("serial", "USB", ...) into a TransportType
func ParseTransportType(value string) (TransportType, error) {
	switch value {
	case "serial", "SERIAL", "":
		return TransportTypeSerial, nil
	case "usb", "USB":
		return TransportTypeUSB, nil
	case "tcp", "TCP":
		return TransportTypeTCP, nil
	default:
		return "", fmt.Errorf("unsupported transport type: %s", value)
	}
}

// ConnectionState is the single authoritative lifecycle state of a session
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

var connectionStateNames = map[ConnectionState]string{
	StateDisconnected: "DISCONNECTED",
	StateConnecting:   "CONNECTING",
	StateConnected:    "CONNECTED",
	StateReconnecting: "RECONNECTING",
	StateFailed:       "FAILED",
}

func (s ConnectionState) String() string {
	if name, ok := connectionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// MarshalJSON encodes the state by name
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name
func (s *ConnectionState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for state, n := range connectionStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown connection state: %s", name)
}

// CanConnect reports whether connect() may start a new attempt from this state
func (s ConnectionState) CanConnect() bool {
	return s == StateDisconnected || s == StateFailed
}

// RetryPolicy is the immutable retry configuration of a session
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Delay       time.Duration `json:"delay"`
}

// Diagnostics is a point-in-time snapshot of a session
type Diagnostics struct {
	SessionID      string          `json:"session_id"`
	State          ConnectionState `json:"state"`
	TransportType  TransportType   `json:"transport_type"`
	Address        string          `json:"address"`
	RetryCount     int             `json:"retry_count"`
	RetryPolicy    RetryPolicy     `json:"retry_policy"`
	AutoReconnect  bool            `json:"auto_reconnect"`
	ConnectedAt    *time.Time      `json:"connected_at,omitempty"`
	LastActivity   *time.Time      `json:"last_activity,omitempty"`
	PendingBytes   int             `json:"pending_bytes"`
	LinesReceived  uint64          `json:"lines_received"`
	BytesReceived  uint64          `json:"bytes_received"`
	CommandsSent   uint64          `json:"commands_sent"`
	BytesWritten   int64           `json:"bytes_written"`
	TransportErrs  int64           `json:"transport_errors"`
	ProbeCount     uint64          `json:"probe_count"`
	PollCount      uint64          `json:"poll_count"`
	EventsEmitted  uint64          `json:"events_emitted"`
	ListenerCount  int             `json:"listener_count"`
	MonitorRunning bool            `json:"monitor_running"`
}
