// internal/discovery/scanner.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"device-session/internal/model"
)

// DeviceScanner finds candidate device links of one transport type
type DeviceScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredDevice, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredDevice is a link a session could be opened on
type DiscoveredDevice struct {
	Transport    model.TransportType `json:"transport"`
	Address      string              `json:"address"`
	Description  string              `json:"description,omitempty"`
	VendorID     string              `json:"vendor_id,omitempty"`
	ProductID    string              `json:"product_id,omitempty"`
	SerialNumber string              `json:"serial_number,omitempty"`
	Bridge       string              `json:"bridge,omitempty"`
	// Confidence that the link is an ESP32 board, 0.0-1.0
	Confidence float64 `json:"confidence"`
}

// LikelyDevice reports whether the link matched a known ESP32 bridge
func (d *DiscoveredDevice) LikelyDevice() bool {
	return d.Bridge != ""
}

// ErrScannerNotFound is returned for an unregistered scanner type
var ErrScannerNotFound = errors.New("scanner type not found")

// ScannerManager runs the registered scanners
type ScannerManager struct {
	scanners map[string]DeviceScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]DeviceScanner),
		logger:   logger.With(zap.String("component", "discovery")),
	}
}

// RegisterScanner registers a device scanner
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every available scanner. A failing scanner is logged and skipped.
// Results are ordered by descending confidence.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredDevice, error) {
	allDevices := []*DiscoveredDevice{}

	for _, scannerType := range sm.scannerTypes() {
		scanner := sm.scanners[scannerType]
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		devices, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		allDevices = append(allDevices, devices...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("devices_found", len(devices)),
		)
	}

	SortByConfidence(allDevices)
	return allDevices, ctx.Err()
}

// ScanByType scans specific scanner type
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredDevice, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrScannerNotFound, scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	devices, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	SortByConfidence(devices)
	return devices, nil
}

// GetAvailableScanners returns list of available scanner types
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for _, scannerType := range sm.scannerTypes() {
		if sm.scanners[scannerType].IsAvailable() {
			available = append(available, scannerType)
		}
	}
	return available
}

func (sm *ScannerManager) scannerTypes() []string {
	types := make([]string, 0, len(sm.scanners))
	for scannerType := range sm.scanners {
		types = append(types, scannerType)
	}
	sort.Strings(types)
	return types
}

// SortByConfidence orders devices by descending confidence, then by address
func SortByConfidence(devices []*DiscoveredDevice) {
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].Confidence != devices[j].Confidence {
			return devices[i].Confidence > devices[j].Confidence
		}
		return devices[i].Address < devices[j].Address
	})
}
