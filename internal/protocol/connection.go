// internal/protocol/connection.go
package protocol

import "time"

// DefaultBaudRate is the fixed line rate of the device firmware
const DefaultBaudRate = 115200

// SerialConfig represents serial transport configuration
type SerialConfig struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baud_rate"`
	DataBits    int           `json:"data_bits"`
	StopBits    int           `json:"stop_bits"`
	Parity      string        `json:"parity"`
	ReadTimeout time.Duration `json:"read_timeout"`
}

// USBConfig represents USB CDC bulk transport configuration
type USBConfig struct {
	VendorID     string        `json:"vendor_id"`
	ProductID    string        `json:"product_id"`
	SerialNumber string        `json:"serial_number"`
	Config       int           `json:"config"`
	Interface    int           `json:"interface"`
	InEndpoint   int           `json:"in_endpoint"`
	OutEndpoint  int           `json:"out_endpoint"`
	Timeout      time.Duration `json:"timeout"`
}

// TCPConfig represents configuration of a TCP serial bridge (ser2net, esp-link)
type TCPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	KeepAlive    bool          `json:"keep_alive"`
}
