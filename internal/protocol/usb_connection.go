// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"device-session/internal/model"
)

// USBConnection implements Transport over the bulk endpoints of a USB CDC device
type USBConnection struct {
	counters

	config   *USBConfig
	ctx      *gousb.Context
	device   *gousb.Device
	intf     *gousb.Interface
	release  func()
	outEndpt *gousb.OutEndpoint
	inEndpt  *gousb.InEndpoint
	logger   *zap.Logger
	mutex    sync.RWMutex
	isOpen   bool
}

// NewUSBConnection creates a new USB transport
func NewUSBConnection(config *USBConfig, logger *zap.Logger) *USBConnection {
	return &USBConnection{
		config: config,
		logger: logger.With(
			zap.String("transport", "usb"),
			zap.String("vendor_id", config.VendorID),
			zap.String("product_id", config.ProductID),
		),
	}
}

// Open finds the device, claims its data interface and resolves both bulk endpoints
func (uc *USBConnection) Open(ctx context.Context) error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.isOpen {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	uc.logger.Info("Opening USB connection",
		zap.Int("interface", uc.config.Interface),
		zap.Int("in_endpoint", uc.config.InEndpoint),
		zap.Int("out_endpoint", uc.config.OutEndpoint),
	)

	vendorID, err := ParseHexID(uc.config.VendorID)
	if err != nil {
		return NewTransportError(KindNotFound, OpOpen, fmt.Errorf("invalid vendor ID: %w", err))
	}

	productID, err := ParseHexID(uc.config.ProductID)
	if err != nil {
		return NewTransportError(KindNotFound, OpOpen, fmt.Errorf("invalid product ID: %w", err))
	}

	usbCtx := gousb.NewContext()

	device, err := uc.findAndOpenDevice(usbCtx, vendorID, productID)
	if err != nil {
		usbCtx.Close()
		return ClassifyError(OpOpen, err)
	}

	if err := device.SetAutoDetach(true); err != nil {
		uc.logger.Debug("Kernel driver auto-detach unavailable", zap.Error(err))
	}

	intf, release, err := uc.claimInterface(device)
	if err != nil {
		device.Close()
		usbCtx.Close()
		return ClassifyError(OpOpen, fmt.Errorf("failed to claim interface: %w", err))
	}

	outEndpt, err := intf.OutEndpoint(uc.config.OutEndpoint)
	if err != nil {
		release()
		device.Close()
		usbCtx.Close()
		return ClassifyError(OpOpen, fmt.Errorf("failed to get out endpoint: %w", err))
	}

	inEndpt, err := intf.InEndpoint(uc.config.InEndpoint)
	if err != nil {
		release()
		device.Close()
		usbCtx.Close()
		return ClassifyError(OpOpen, fmt.Errorf("failed to get in endpoint: %w", err))
	}

	uc.ctx = usbCtx
	uc.device = device
	uc.intf = intf
	uc.release = release
	uc.outEndpt = outEndpt
	uc.inEndpt = inEndpt
	uc.isOpen = true

	uc.logger.Info("USB connection opened successfully")
	return nil
}

// claimInterface claims the configured interface, or the default one when none is set
func (uc *USBConnection) claimInterface(device *gousb.Device) (*gousb.Interface, func(), error) {
	if uc.config.Config == 0 && uc.config.Interface == 0 {
		return device.DefaultInterface()
	}

	cfgNum := uc.config.Config
	if cfgNum == 0 {
		cfgNum = 1
	}
	cfg, err := device.Config(cfgNum)
	if err != nil {
		return nil, nil, err
	}
	intf, err := cfg.Interface(uc.config.Interface, 0)
	if err != nil {
		cfg.Close()
		return nil, nil, err
	}
	return intf, func() {
		intf.Close()
		cfg.Close()
	}, nil
}

// Close releases the interface, the device and the libusb context
func (uc *USBConnection) Close() error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if !uc.isOpen {
		return nil
	}

	var errs []error
	if uc.release != nil {
		uc.release()
		uc.release = nil
	}
	if uc.device != nil {
		if err := uc.device.Close(); err != nil {
			errs = append(errs, err)
		}
		uc.device = nil
	}
	if uc.ctx != nil {
		if err := uc.ctx.Close(); err != nil {
			errs = append(errs, err)
		}
		uc.ctx = nil
	}

	uc.intf = nil
	uc.outEndpt = nil
	uc.inEndpt = nil
	uc.isOpen = false

	if err := errors.Join(errs...); err != nil {
		uc.logger.Error("Failed to close USB connection", zap.Error(err))
		return ClassifyError(OpClose, err)
	}

	uc.logger.Info("USB connection closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (uc *USBConnection) IsOpen() bool {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.isOpen && uc.device != nil && uc.outEndpt != nil
}

// Write writes data to the bulk OUT endpoint
func (uc *USBConnection) Write(ctx context.Context, data []byte) error {
	uc.mutex.RLock()
	outEndpt := uc.outEndpt
	uc.mutex.RUnlock()

	if outEndpt == nil {
		return ClassifyError(OpWrite, ErrNotOpen)
	}

	if uc.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.config.Timeout)
		defer cancel()
	}

	n, err := outEndpt.WriteContext(ctx, data)
	if err != nil {
		uc.recordError()
		uc.logger.Error("USB write failed", zap.Error(err))
		return ClassifyError(OpWrite, fmt.Errorf("failed to write to USB device: %w", err))
	}

	if n != len(data) {
		return ClassifyError(OpWrite, fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data)))
	}

	uc.recordWrite(n)
	uc.logger.Debug("USB write completed", zap.Int("bytes", n))
	return nil
}

// Read waits for data on the bulk IN endpoint
func (uc *USBConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	uc.mutex.RLock()
	inEndpt := uc.inEndpt
	uc.mutex.RUnlock()

	if inEndpt == nil {
		return nil, ClassifyError(OpRead, ErrNotOpen)
	}

	// a bulk transfer must be a multiple of the max packet size
	size := maxBytes
	if mps := inEndpt.Desc.MaxPacketSize; mps > 0 && size%mps != 0 {
		size = (size/mps + 1) * mps
	}
	buffer := make([]byte, size)

	for {
		n, err := inEndpt.ReadContext(ctx, buffer)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			if errors.Is(err, gousb.TransferTimedOut) {
				continue
			}
			uc.recordError()
			return nil, ClassifyError(OpRead, fmt.Errorf("failed to read from USB device: %w", err))
		}
		if n > 0 {
			uc.recordRead(n)
			data := make([]byte, n)
			copy(data, buffer[:n])
			return data, nil
		}
	}
}

// Probe reads the manufacturer string descriptor, a control transfer on endpoint 0
func (uc *USBConnection) Probe(ctx context.Context) error {
	uc.mutex.RLock()
	device := uc.device
	uc.mutex.RUnlock()

	if device == nil {
		return ClassifyError(OpProbe, ErrNotOpen)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := device.Manufacturer(); err != nil {
		uc.recordError()
		return ClassifyError(OpProbe, fmt.Errorf("failed to read device descriptor: %w", err))
	}
	return nil
}

// Type returns the transport type
func (uc *USBConnection) Type() model.TransportType {
	return model.TransportTypeUSB
}

// Address returns VID:PID
func (uc *USBConnection) Address() string {
	return fmt.Sprintf("%s:%s", uc.config.VendorID, uc.config.ProductID)
}

// ParseHexID parses hex ID string (0x1234 or 1234)
func ParseHexID(hexStr string) (gousb.ID, error) {
	hexStr = strings.TrimPrefix(strings.TrimPrefix(hexStr, "0x"), "0X")

	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}

	return gousb.ID(id), nil
}

// findAndOpenDevice finds and opens the USB device
func (uc *USBConnection) findAndOpenDevice(usbCtx *gousb.Context, vendorID, productID gousb.ID) (*gousb.Device, error) {
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendorID && desc.Product == productID
	})
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	var selected *gousb.Device
	for _, dev := range devices {
		if selected == nil && uc.matchesSerial(dev) {
			selected = dev
			continue
		}
		dev.Close()
	}

	if selected == nil {
		return nil, NewTransportError(KindNotFound, OpOpen,
			fmt.Errorf("USB device not found (VID: %s, PID: %s)", vendorID, productID))
	}

	if len(devices) > 1 {
		uc.logger.Warn("Multiple matching USB devices found, using first one", zap.Int("count", len(devices)))
	}

	return selected, nil
}

func (uc *USBConnection) matchesSerial(dev *gousb.Device) bool {
	if uc.config.SerialNumber == "" {
		return true
	}
	serial, err := dev.SerialNumber()
	return err == nil && serial == uc.config.SerialNumber
}
