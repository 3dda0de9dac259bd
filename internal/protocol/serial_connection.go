// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"device-session/internal/model"
)

// defaultSerialReadTimeout bounds a single port read so cancellation is observed
const defaultSerialReadTimeout = 100 * time.Millisecond

// openSerialPort is replaced in tests
var openSerialPort = serial.Open

// SerialConnection implements Transport over a serial port
type SerialConnection struct {
	counters

	config *SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
}

// NewSerialConnection creates a new serial transport
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens the serial port
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	sc.logger.Info("Opening serial port",
		zap.Int("baud_rate", sc.config.BaudRate),
	)

	mode := &serial.Mode{
		BaudRate: sc.config.BaudRate,
		DataBits: sc.config.DataBits,
		Parity:   parseParity(sc.config.Parity),
		StopBits: parseStopBits(sc.config.StopBits),
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	port, err := openSerialPort(sc.config.Port, mode)
	if err != nil {
		sc.recordError()
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return ClassifyError(OpOpen, fmt.Errorf("failed to open serial port %s: %w", sc.config.Port, err))
	}

	timeout := sc.config.ReadTimeout
	if timeout <= 0 {
		timeout = defaultSerialReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return ClassifyError(OpOpen, fmt.Errorf("failed to set read timeout: %w", err))
	}

	sc.port = port
	sc.isOpen = true

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial port. A read blocked on the port returns with a link-lost error.
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	sc.port = nil
	sc.isOpen = false

	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return ClassifyError(OpClose, fmt.Errorf("failed to close serial port: %w", err))
	}

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the port is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

func (sc *SerialConnection) currentPort() (serial.Port, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	if !sc.isOpen || sc.port == nil {
		return nil, ErrNotOpen
	}
	return sc.port, nil
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	port, err := sc.currentPort()
	if err != nil {
		return ClassifyError(OpWrite, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	for written := 0; written < len(data); {
		n, err := port.Write(data[written:])
		if err != nil {
			sc.recordError()
			sc.logger.Error("Serial write failed", zap.Error(err))
			return ClassifyError(OpWrite, fmt.Errorf("failed to write to serial port: %w", err))
		}
		if n == 0 {
			return ClassifyError(OpWrite, fmt.Errorf("incomplete write: wrote %d of %d bytes", written, len(data)))
		}
		written += n
	}

	if err := port.Drain(); err != nil {
		sc.logger.Debug("Serial drain failed", zap.Error(err))
	}

	sc.recordWrite(len(data))
	sc.logger.Debug("Serial write completed", zap.Int("bytes", len(data)))
	return nil
}

// Read waits for data on the serial port. The port's read timeout acts as the
// polling interval at which ctx is checked.
func (sc *SerialConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	port, err := sc.currentPort()
	if err != nil {
		return nil, ClassifyError(OpRead, err)
	}

	buffer := make([]byte, maxBytes)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := port.Read(buffer)
		if err != nil {
			sc.recordError()
			return nil, ClassifyError(OpRead, fmt.Errorf("failed to read from serial port: %w", err))
		}
		if n > 0 {
			sc.recordRead(n)
			data := make([]byte, n)
			copy(data, buffer[:n])
			return data, nil
		}
		// n == 0 is a read timeout; a closed port reports an error instead
		if !sc.IsOpen() {
			return nil, ClassifyError(OpRead, ErrNotOpen)
		}
	}
}

// Probe queries the modem status lines, which fails once the device is gone
func (sc *SerialConnection) Probe(ctx context.Context) error {
	port, err := sc.currentPort()
	if err != nil {
		return ClassifyError(OpProbe, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := port.GetModemStatusBits(); err != nil {
		sc.recordError()
		return ClassifyError(OpProbe, fmt.Errorf("failed to query modem status: %w", err))
	}
	return nil
}

// Type returns the transport type
func (sc *SerialConnection) Type() model.TransportType {
	return model.TransportTypeSerial
}

// Address returns the port name
func (sc *SerialConnection) Address() string {
	return sc.config.Port
}

func parseParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

func parseStopBits(bits int) serial.StopBits {
	if bits == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}
