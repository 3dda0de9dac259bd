// internal/protocol/factory.go
package protocol

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"device-session/internal/model"
)

// AutoPort asks the factory to resolve the serial port at connect time
const AutoPort = "auto"

// PortResolver picks a serial port when the configured port is AutoPort
type PortResolver func(ctx context.Context) (string, error)

// FactoryConfig selects and configures the transport kind
type FactoryConfig struct {
	Type   model.TransportType
	Serial SerialConfig
	USB    USBConfig
	TCP    TCPConfig
}

// Factory creates a fresh Transport for every connection attempt
type Factory struct {
	config   FactoryConfig
	resolver PortResolver
	logger   *zap.Logger
}

// NewFactory creates a transport factory. resolver may be nil when the port is fixed.
func NewFactory(config FactoryConfig, resolver PortResolver, logger *zap.Logger) (*Factory, error) {
	applyDefaults(&config)
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if config.Type == model.TransportTypeSerial && config.Serial.Port == AutoPort && resolver == nil {
		return nil, fmt.Errorf("serial port %q requires a port resolver", AutoPort)
	}
	return &Factory{
		config:   config,
		resolver: resolver,
		logger:   logger.With(zap.String("component", "transport_factory")),
	}, nil
}

// NewTransport creates an unopened transport
func (f *Factory) NewTransport(ctx context.Context) (Transport, error) {
	switch f.config.Type {
	case model.TransportTypeSerial:
		return f.createSerial(ctx)
	case model.TransportTypeUSB:
		usbConfig := f.config.USB
		f.logger.Info("Creating USB transport",
			zap.String("vendor_id", usbConfig.VendorID),
			zap.String("product_id", usbConfig.ProductID),
			zap.Int("interface", usbConfig.Interface),
		)
		return NewUSBConnection(&usbConfig, f.logger), nil
	case model.TransportTypeTCP:
		tcpConfig := f.config.TCP
		f.logger.Info("Creating TCP transport",
			zap.String("host", tcpConfig.Host),
			zap.Int("port", tcpConfig.Port),
		)
		return NewTCPConnection(&tcpConfig, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", f.config.Type)
	}
}

// Describe returns the configured transport type and address without opening anything
func (f *Factory) Describe() (model.TransportType, string) {
	switch f.config.Type {
	case model.TransportTypeUSB:
		return f.config.Type, fmt.Sprintf("%s:%s", f.config.USB.VendorID, f.config.USB.ProductID)
	case model.TransportTypeTCP:
		return f.config.Type, fmt.Sprintf("%s:%d", f.config.TCP.Host, f.config.TCP.Port)
	default:
		return f.config.Type, f.config.Serial.Port
	}
}

func (f *Factory) createSerial(ctx context.Context) (Transport, error) {
	serialConfig := f.config.Serial

	if serialConfig.Port == AutoPort {
		port, err := f.resolver(ctx)
		if err != nil {
			return nil, NewTransportError(KindNotFound, OpOpen, fmt.Errorf("failed to resolve serial port: %w", err))
		}
		serialConfig.Port = port
	}

	f.logger.Info("Creating serial transport",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(&serialConfig, f.logger), nil
}

func applyDefaults(config *FactoryConfig) {
	if config.Type == "" {
		config.Type = model.TransportTypeSerial
	}
	if config.Serial.BaudRate == 0 {
		config.Serial.BaudRate = DefaultBaudRate
	}
	if config.Serial.DataBits == 0 {
		config.Serial.DataBits = 8
	}
	if config.Serial.StopBits == 0 {
		config.Serial.StopBits = 1
	}
	if config.Serial.Parity == "" {
		config.Serial.Parity = "none"
	}
	if config.USB.InEndpoint == 0 {
		config.USB.InEndpoint = 1
	}
	if config.USB.OutEndpoint == 0 {
		config.USB.OutEndpoint = 1
	}
	if config.USB.Timeout == 0 {
		config.USB.Timeout = 5 * time.Second
	}
	if config.TCP.DialTimeout == 0 {
		config.TCP.DialTimeout = 10 * time.Second
	}
}

// ValidateConfig validates configuration for the selected transport type
func ValidateConfig(config FactoryConfig) error {
	switch config.Type {
	case model.TransportTypeSerial:
		return validateSerialConfig(config.Serial)
	case model.TransportTypeUSB:
		return validateUSBConfig(config.USB)
	case model.TransportTypeTCP:
		return validateTCPConfig(config.TCP)
	default:
		return fmt.Errorf("unsupported transport type: %s", config.Type)
	}
}

// validateSerialConfig validates serial configuration
func validateSerialConfig(config SerialConfig) error {
	if config.Port == "" {
		return fmt.Errorf("serial port is required")
	}

	validRates := []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}
	if !slices.Contains(validRates, config.BaudRate) {
		return fmt.Errorf("invalid baud rate: %d", config.BaudRate)
	}

	switch config.Parity {
	case "none", "odd", "even", "mark", "space":
	default:
		return fmt.Errorf("invalid parity: %s", config.Parity)
	}

	if config.DataBits < 5 || config.DataBits > 8 {
		return fmt.Errorf("invalid data bits: %d", config.DataBits)
	}
	if config.StopBits != 1 && config.StopBits != 2 {
		return fmt.Errorf("invalid stop bits: %d", config.StopBits)
	}

	return nil
}

// validateUSBConfig validates USB configuration
func validateUSBConfig(config USBConfig) error {
	if config.VendorID == "" {
		return fmt.Errorf("USB vendor_id is required")
	}
	if _, err := ParseHexID(config.VendorID); err != nil {
		return fmt.Errorf("invalid USB vendor_id %q: %w", config.VendorID, err)
	}

	if config.ProductID == "" {
		return fmt.Errorf("USB product_id is required")
	}
	if _, err := ParseHexID(config.ProductID); err != nil {
		return fmt.Errorf("invalid USB product_id %q: %w", config.ProductID, err)
	}

	return nil
}

// validateTCPConfig validates TCP configuration
func validateTCPConfig(config TCPConfig) error {
	if config.Host == "" {
		return fmt.Errorf("TCP host is required")
	}

	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", config.Port)
	}

	return nil
}
