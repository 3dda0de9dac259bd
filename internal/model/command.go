// internal/model/command.go
package model

// Outbound command vocabulary understood by the device firmware
const (
	CmdConfigSchema  = "CONFIG_SCHEMA"
	CmdConfigSave    = "CONFIG_SAVE"
	CmdConfigLoad    = "CONFIG_LOAD"
	CmdRestart       = "RESTART"
	CmdStatus        = "STATUS"
	CmdNetworkStatus = "NETWORK_STATUS"
	CmdNetworkStats  = "NETWORK_STATS"
	CmdIOStatus      = "IO_STATUS"
	CmdDeviceData    = "DEVICE_DATA"
)

// Inbound line markers
const (
	JSONResponsePrefix  = "JSON_RESPONSE: "
	PlainResponsePrefix = "RESPONSE: "
)

// LineTerminator is appended to every outbound command
const LineTerminator = "\n"

// StatusPollCommands are sent on every status poll tick, in this order
var StatusPollCommands = []string{
	CmdNetworkStatus,
	CmdNetworkStats,
	CmdIOStatus,
	CmdDeviceData,
}
