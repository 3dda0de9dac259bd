// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"errors"
	"fmt"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"device-session/internal/discovery"
	"device-session/internal/model"
)

// ErrNoPort is returned by ResolvePort when no candidate port exists
var ErrNoPort = errors.New("no ESP32 serial port found")

// nonUSBConfidence is assigned to on-board UARTs, which rarely carry a device console
const nonUSBConfidence = 0.05

// listPorts is replaced in tests
var listPorts = enumerator.GetDetailedPortsList

// Scanner lists serial ports and ranks them by how likely they lead to an ESP32
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		logger: logger.With(zap.String("scanner", "serial")),
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists serial ports with their USB identity
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	devices := make([]*discovery.DiscoveredDevice, 0, len(ports))
	for _, port := range ports {
		devices = append(devices, s.describe(port))
	}

	s.logger.Info("Serial scan completed", zap.Int("ports_found", len(devices)))
	return devices, nil
}

func (s *Scanner) describe(port *enumerator.PortDetails) *discovery.DiscoveredDevice {
	device := &discovery.DiscoveredDevice{
		Transport:   model.TransportTypeSerial,
		Address:     port.Name,
		Description: port.Product,
		Confidence:  nonUSBConfidence,
	}
	if !port.IsUSB {
		return device
	}

	device.VendorID = discovery.NormalizeID(port.VID)
	device.ProductID = discovery.NormalizeID(port.PID)
	device.SerialNumber = port.SerialNumber
	device.Confidence = discovery.Confidence(port.VID, port.PID)
	if bridge, ok := discovery.LookupBridge(port.VID, port.PID); ok {
		device.Bridge = bridge.Name
		if device.Description == "" {
			device.Description = bridge.Name
		}
	}

	s.logger.Debug("Found USB serial port",
		zap.String("port", port.Name),
		zap.String("vendor_id", device.VendorID),
		zap.String("product_id", device.ProductID),
		zap.String("bridge", device.Bridge),
	)
	return device
}

// ResolvePort picks the port to open when the configured port is "auto": the
// best known bridge, or the only USB serial port when no bridge is recognized
func (s *Scanner) ResolvePort(ctx context.Context) (string, error) {
	devices, err := s.Scan(ctx)
	if err != nil {
		return "", err
	}
	discovery.SortByConfidence(devices)

	var usb []*discovery.DiscoveredDevice
	for _, d := range devices {
		if d.LikelyDevice() {
			s.logger.Info("Resolved serial port", zap.String("port", d.Address), zap.String("bridge", d.Bridge))
			return d.Address, nil
		}
		if d.VendorID != "" {
			usb = append(usb, d)
		}
	}

	if len(usb) == 1 {
		s.logger.Info("Resolved serial port to the only USB port", zap.String("port", usb[0].Address))
		return usb[0].Address, nil
	}

	return "", ErrNoPort
}
