package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-session/internal/model"
)

type stubScanner struct {
	kind      string
	available bool
	devices   []*DiscoveredDevice
	err       error
}

func (s *stubScanner) Scan(ctx context.Context) ([]*DiscoveredDevice, error) { return s.devices, s.err }
func (s *stubScanner) GetScannerType() string                               { return s.kind }
func (s *stubScanner) IsAvailable() bool                                    { return s.available }

func TestScannerManager_ScanAll(t *testing.T) {
	sm := NewScannerManager(zap.NewNop())
	sm.RegisterScanner(&stubScanner{kind: "serial", available: true, devices: []*DiscoveredDevice{
		{Transport: model.TransportTypeSerial, Address: "/dev/ttyS0", Confidence: 0.05},
		{Transport: model.TransportTypeSerial, Address: "/dev/ttyUSB0", Confidence: 0.9, Bridge: "CP210x"},
	}})
	sm.RegisterScanner(&stubScanner{kind: "usb", available: true, err: errors.New("libusb missing")})
	sm.RegisterScanner(&stubScanner{kind: "tcp", available: false, devices: []*DiscoveredDevice{{Address: "skipped"}}})

	devices, err := sm.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Address)
	assert.True(t, devices[0].LikelyDevice())

	assert.Equal(t, []string{"serial", "usb"}, sm.GetAvailableScanners())

	_, err = sm.ScanByType(context.Background(), "tcp")
	assert.Error(t, err)
	_, err = sm.ScanByType(context.Background(), "bluetooth")
	assert.Error(t, err)
}

func TestLookupBridge(t *testing.T) {
	tests := []struct {
		vid, pid string
		want     string
		found    bool
	}{
		{"10C4", "EA60", "Silicon Labs CP210x", true},
		{"0x1a86", "0x7523", "WCH CH340", true},
		{"303a", "0002", "Espressif native USB", true},
		{"10c4", "ea70", "", false},
		{"067b", "2303", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.vid+":"+tt.pid, func(t *testing.T) {
			b, ok := LookupBridge(tt.vid, tt.pid)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, b.Name)
		})
	}

	assert.Equal(t, genericSerialConfidence, Confidence("067b", "2303"))
}
