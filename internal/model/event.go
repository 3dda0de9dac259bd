// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventKind represents the type of a session event
type EventKind string

const (
	EventStateChanged        EventKind = "STATE_CHANGED"
	EventRawLine             EventKind = "RAW_LINE"
	EventConfigSchema        EventKind = "CONFIG_SCHEMA"
	EventCurrentConfig       EventKind = "CURRENT_CONFIG"
	EventNetworkStatus       EventKind = "NETWORK_STATUS"
	EventNetworkStats        EventKind = "NETWORK_STATS"
	EventIOStatus            EventKind = "IO_STATUS"
	EventDeviceData          EventKind = "DEVICE_DATA"
	EventDeviceInfo          EventKind = "DEVICE_INFO"
	EventPlainResponse       EventKind = "PLAIN_RESPONSE"
	EventClassificationError EventKind = "CLASSIFICATION_ERROR"
	EventTransportError      EventKind = "TRANSPORT_ERROR"
	EventConnectionLost      EventKind = "CONNECTION_LOST"
	EventRetryExhausted      EventKind = "RETRY_EXHAUSTED"
	EventNotConnected        EventKind = "NOT_CONNECTED"
	EventCommandRejected     EventKind = "COMMAND_REJECTED"
)

// Severity levels attached to events for the presentation layer
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// Payload is implemented by every event variant
type Payload interface {
	Kind() EventKind
}

// Event is an ordered, timestamped notification emitted by a session.
// Sequence is strictly increasing per session and matches delivery order.
type Event struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	Sequence  uint64    `json:"sequence"`
	Kind      EventKind `json:"kind"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// IsInbound reports whether the event was produced from device traffic
func (e Event) IsInbound() bool {
	switch e.Kind {
	case EventRawLine, EventConfigSchema, EventCurrentConfig, EventNetworkStatus,
		EventNetworkStats, EventIOStatus, EventDeviceData, EventDeviceInfo,
		EventPlainResponse, EventClassificationError:
		return true
	}
	return false
}

// SeverityOf returns the default severity for a payload
func SeverityOf(p Payload) string {
	switch v := p.(type) {
	case *ClassificationError, *NotConnected, *CommandRejected:
		return SeverityWarning
	case *TransportError:
		if v.Fatal {
			return SeverityError
		}
		return SeverityWarning
	case *ConnectionLost:
		return SeverityError
	case *RetryExhausted:
		return SeverityCritical
	case *PlainResponse:
		if v.Status == ResponseStatusError {
			return SeverityWarning
		}
	}
	return SeverityInfo
}

// StateChange is emitted on every connection state transition
type StateChange struct {
	From    ConnectionState `json:"from"`
	To      ConnectionState `json:"to"`
	Reason  string          `json:"reason,omitempty"`
	Attempt int             `json:"attempt,omitempty"`
}

func (*StateChange) Kind() EventKind { return EventStateChanged }

// RawLine is unstructured device output such as boot logs
type RawLine struct {
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

func (*RawLine) Kind() EventKind { return EventRawLine }

// PlainResponse is a "RESPONSE: " reply with the marker stripped
type PlainResponse struct {
	Text   string         `json:"text"`
	Status ResponseStatus `json:"status"`
}

func (*PlainResponse) Kind() EventKind { return EventPlainResponse }

// ResponseStatus is derived from the firmware's reply prefixes
type ResponseStatus string

const (
	ResponseStatusInfo    ResponseStatus = "info"
	ResponseStatusSuccess ResponseStatus = "success"
	ResponseStatusError   ResponseStatus = "error"
)

// ClassificationError preserves a line that could not be mapped to a known shape
type ClassificationError struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

func (*ClassificationError) Kind() EventKind { return EventClassificationError }

// TransportError reports a read, write, open or probe failure
type TransportError struct {
	Op      string `json:"op"`
	Class   string `json:"class"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Fatal   bool   `json:"fatal"`
}

func (*TransportError) Kind() EventKind { return EventTransportError }

// ConnectionLost is emitted when a fatal transport error tears down a live link
type ConnectionLost struct {
	Reason        string `json:"reason"`
	Class         string `json:"class"`
	AutoReconnect bool   `json:"auto_reconnect"`
}

func (*ConnectionLost) Kind() EventKind { return EventConnectionLost }

// RetryExhausted is the terminal event of a failed connect cycle
type RetryExhausted struct {
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
}

func (*RetryExhausted) Kind() EventKind { return EventRetryExhausted }

// NotConnected reports a command that was dropped because the link is down
type NotConnected struct {
	Command string          `json:"command"`
	State   ConnectionState `json:"state"`
}

func (*NotConnected) Kind() EventKind { return EventNotConnected }

// CommandRejected reports a command that was never written because it is not a
// single line
type CommandRejected struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

func (*CommandRejected) Kind() EventKind { return EventCommandRejected }
