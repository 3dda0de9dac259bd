// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"device-session/internal/discovery"
	"device-session/internal/model"
)

// Scanner finds ESP32 USB bridges through libusb, for the USB transport
type Scanner struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewScanner creates a new USB scanner. timeout <= 0 selects 10s.
func NewScanner(logger *zap.Logger, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scanner{
		logger:  logger.With(zap.String("scanner", "usb")),
		timeout: timeout,
	}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return "usb"
}

// IsAvailable checks if libusb can be used on this platform
func (s *Scanner) IsAvailable() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		return true
	default:
		s.logger.Warn("USB scanning support unknown for OS", zap.String("os", runtime.GOOS))
		return false
	}
}

// Scan enumerates USB devices with a known bridge VID/PID
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	startTime := time.Now()

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	devices, err := usbCtx.OpenDevices(Matches)
	defer closeAll(devices)
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	discovered := make([]*discovery.DiscoveredDevice, 0, len(devices))
	for _, device := range devices {
		if err := scanCtx.Err(); err != nil {
			return discovered, err
		}
		discovered = append(discovered, s.describe(device))
	}

	s.logger.Info("USB scan completed",
		zap.Int("devices_found", len(discovered)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return discovered, nil
}

// Matches reports whether a device descriptor belongs to a known bridge
func Matches(desc *gousb.DeviceDesc) bool {
	_, ok := discovery.LookupBridge(desc.Vendor.String(), desc.Product.String())
	return ok
}

// Describe builds the discovery record for a descriptor
func Describe(desc *gousb.DeviceDesc) *discovery.DiscoveredDevice {
	vendorID, productID := desc.Vendor.String(), desc.Product.String()
	device := &discovery.DiscoveredDevice{
		Transport:  model.TransportTypeUSB,
		Address:    fmt.Sprintf("%s:%s", vendorID, productID),
		VendorID:   vendorID,
		ProductID:  productID,
		Confidence: discovery.Confidence(vendorID, productID),
	}
	if bridge, ok := discovery.LookupBridge(vendorID, productID); ok {
		device.Bridge = bridge.Name
		device.Description = bridge.Name
	}
	return device
}

func (s *Scanner) describe(device *gousb.Device) *discovery.DiscoveredDevice {
	d := Describe(device.Desc)

	if serial, err := device.SerialNumber(); err == nil {
		d.SerialNumber = serial
	}
	if product, err := device.Product(); err == nil && product != "" {
		d.Description = product
	}

	s.logger.Debug("Found USB bridge",
		zap.String("vendor_id", d.VendorID),
		zap.String("product_id", d.ProductID),
		zap.String("bus", fmt.Sprintf("%d:%d", device.Desc.Bus, device.Desc.Address)),
	)
	return d
}

func closeAll(devices []*gousb.Device) {
	for _, device := range devices {
		device.Close()
	}
}
