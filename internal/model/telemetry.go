// internal/model/telemetry.go
package model

import "github.com/shopspring/decimal"

// Config sections reported by the device
const (
	SectionNetworkIdentity = "network_identity"
	SectionSystemBehavior  = "system_behavior"
)

// ConfigSchema is the CONFIG_SCHEMA reply: every field carries type, label and default
type ConfigSchema struct {
	Schema map[string]interface{} `json:"schema"`
	// Defaults holds section -> field -> default, the values currently applied on the device
	Defaults map[string]map[string]interface{} `json:"defaults"`
}

func (*ConfigSchema) Kind() EventKind { return EventConfigSchema }

// CurrentConfig is the CONFIG_LOAD reply with plain values
type CurrentConfig struct {
	Values map[string]interface{} `json:"values"`
}

func (*CurrentConfig) Kind() EventKind { return EventCurrentConfig }

// NetworkStatus is the NETWORK_STATUS reply
type NetworkStatus struct {
	HID                 *int                   `json:"hid,omitempty"`
	BitIndex            *int                   `json:"bit_index,omitempty"`
	ParentHID           *int                   `json:"parent_hid,omitempty"`
	IsRoot              *bool                  `json:"is_root,omitempty"`
	IsConfigured        *bool                  `json:"is_configured,omitempty"`
	TreeDepth           *int                   `json:"tree_depth,omitempty"`
	ChildCount          *int                   `json:"child_count,omitempty"`
	ConfigurationStatus string                 `json:"configuration_status,omitempty"`
	Fields              map[string]interface{} `json:"fields"`
}

func (*NetworkStatus) Kind() EventKind { return EventNetworkStatus }

// NetworkStats is the NETWORK_STATS reply
type NetworkStats struct {
	MessagesSent       *uint64                `json:"messages_sent,omitempty"`
	MessagesReceived   *uint64                `json:"messages_received,omitempty"`
	MessagesForwarded  *uint64                `json:"messages_forwarded,omitempty"`
	MessagesIgnored    *uint64                `json:"messages_ignored,omitempty"`
	SecurityViolations *uint64                `json:"security_violations,omitempty"`
	LastMessageTime    *uint64                `json:"last_message_time,omitempty"`
	LastSenderMAC      string                 `json:"last_sender_mac,omitempty"`
	SignalStrength     decimal.NullDecimal    `json:"signal_strength"`
	Fields             map[string]interface{} `json:"fields"`
}

func (*NetworkStats) Kind() EventKind { return EventNetworkStats }

// IOStatus is the IO_STATUS reply
type IOStatus struct {
	InputStates      *uint8                 `json:"input_states,omitempty"`
	OutputStates     *uint8                 `json:"output_states,omitempty"`
	SharedData       []uint32               `json:"shared_data,omitempty"`
	MyBitStates      []bool                 `json:"my_bit_states,omitempty"`
	InputChangeCount *uint64                `json:"input_change_count,omitempty"`
	LastInputChange  *uint64                `json:"last_input_change,omitempty"`
	Fields           map[string]interface{} `json:"fields"`
}

func (*IOStatus) Kind() EventKind { return EventIOStatus }

// DeviceData is the DEVICE_DATA reply
type DeviceData struct {
	MemoryStates    *uint64                `json:"memory_states,omitempty"`
	AnalogValue1    decimal.NullDecimal    `json:"analog_value1"`
	AnalogValue2    decimal.NullDecimal    `json:"analog_value2"`
	IntegerValue1   *int64                 `json:"integer_value1,omitempty"`
	IntegerValue2   *int64                 `json:"integer_value2,omitempty"`
	SequenceCounter *uint64                `json:"sequence_counter,omitempty"`
	Uptime          *uint64                `json:"uptime,omitempty"`
	Fields          map[string]interface{} `json:"fields"`
}

func (*DeviceData) Kind() EventKind { return EventDeviceData }

// DeviceInfo is the STATUS reply
type DeviceInfo struct {
	Chip     string                 `json:"chip,omitempty"`
	Version  string                 `json:"version,omitempty"`
	MAC      string                 `json:"mac,omitempty"`
	Flash    string                 `json:"flash,omitempty"`
	SDK      string                 `json:"sdk,omitempty"`
	Uptime   *uint64                `json:"uptime,omitempty"`
	FreeHeap *uint64                `json:"free_heap,omitempty"`
	Fields   map[string]interface{} `json:"fields"`
}

func (*DeviceInfo) Kind() EventKind { return EventDeviceInfo }
