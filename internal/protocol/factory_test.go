package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-session/internal/model"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  FactoryConfig
		wantErr string
	}{
		{"serial ok", FactoryConfig{Type: model.TransportTypeSerial, Serial: SerialConfig{Port: "/dev/ttyUSB0"}}, ""},
		{"serial missing port", FactoryConfig{Type: model.TransportTypeSerial}, "serial port is required"},
		{"serial bad baud", FactoryConfig{Type: model.TransportTypeSerial, Serial: SerialConfig{Port: "COM3", BaudRate: 1234}}, "invalid baud rate"},
		{"serial bad parity", FactoryConfig{Type: model.TransportTypeSerial, Serial: SerialConfig{Port: "COM3", Parity: "weird"}}, "invalid parity"},
		{"usb ok", FactoryConfig{Type: model.TransportTypeUSB, USB: USBConfig{VendorID: "0x303a", ProductID: "1001"}}, ""},
		{"usb bad vid", FactoryConfig{Type: model.TransportTypeUSB, USB: USBConfig{VendorID: "zz", ProductID: "1001"}}, "invalid USB vendor_id"},
		{"tcp ok", FactoryConfig{Type: model.TransportTypeTCP, TCP: TCPConfig{Host: "10.0.0.2", Port: 2000}}, ""},
		{"tcp bad port", FactoryConfig{Type: model.TransportTypeTCP, TCP: TCPConfig{Host: "10.0.0.2"}}, "invalid port number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFactory(tt.config, nil, zap.NewNop())
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFactory_DefaultsToFixedLineRate(t *testing.T) {
	f, err := NewFactory(FactoryConfig{Serial: SerialConfig{Port: "/dev/ttyUSB0"}}, nil, zap.NewNop())
	require.NoError(t, err)

	tr, err := f.NewTransport(context.Background())
	require.NoError(t, err)

	sc, ok := tr.(*SerialConnection)
	require.True(t, ok)
	assert.Equal(t, DefaultBaudRate, sc.config.BaudRate)
	assert.Equal(t, 8, sc.config.DataBits)
	assert.Equal(t, "/dev/ttyUSB0", tr.Address())
	assert.False(t, tr.IsOpen())
}

func TestFactory_AutoPort(t *testing.T) {
	_, err := NewFactory(FactoryConfig{Serial: SerialConfig{Port: AutoPort}}, nil, zap.NewNop())
	require.Error(t, err)

	resolved := func(context.Context) (string, error) { return "/dev/ttyACM0", nil }
	f, err := NewFactory(FactoryConfig{Serial: SerialConfig{Port: AutoPort}}, resolved, zap.NewNop())
	require.NoError(t, err)

	tr, err := f.NewTransport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", tr.Address())

	missing := func(context.Context) (string, error) { return "", errors.New("no ESP32 port found") }
	f, err = NewFactory(FactoryConfig{Serial: SerialConfig{Port: AutoPort}}, missing, zap.NewNop())
	require.NoError(t, err)

	_, err = f.NewTransport(context.Background())
	assert.Equal(t, KindNotFound, KindOf(err))
}
