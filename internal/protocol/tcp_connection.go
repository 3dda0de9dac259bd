// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"device-session/internal/model"
)

// defaultTCPPollInterval bounds a single socket read so cancellation is observed
const defaultTCPPollInterval = 200 * time.Millisecond

// TCPConnection implements Transport over a TCP serial bridge
type TCPConnection struct {
	counters

	config *TCPConfig
	conn   net.Conn
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	// peerClosed is set once a read observed EOF; the probe reports it
	peerClosed bool
}

// NewTCPConnection creates a new TCP transport
func NewTCPConnection(config *TCPConfig, logger *zap.Logger) *TCPConnection {
	return &TCPConnection{
		config: config,
		logger: logger.With(
			zap.String("transport", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Open dials the bridge
func (tc *TCPConnection) Open(ctx context.Context) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.isOpen {
		return nil
	}

	tc.logger.Info("Opening TCP connection")

	dialer := &net.Dialer{
		Timeout: tc.config.DialTimeout,
	}
	if tc.config.KeepAlive {
		dialer.KeepAlive = 30 * time.Second
	}

	conn, err := dialer.DialContext(ctx, "tcp", tc.Address())
	if err != nil {
		tc.recordError()
		tc.logger.Error("Failed to open TCP connection", zap.Error(err))
		return ClassifyError(OpOpen, fmt.Errorf("failed to connect to %s: %w", tc.Address(), err))
	}

	tc.conn = conn
	tc.isOpen = true
	tc.peerClosed = false

	tc.logger.Info("TCP connection opened successfully")
	return nil
}

// Close closes the socket. A pending read returns with a link-lost error.
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil
	}

	err := tc.conn.Close()
	tc.conn = nil
	tc.isOpen = false

	if err != nil {
		tc.logger.Error("Failed to close TCP connection", zap.Error(err))
		return ClassifyError(OpClose, fmt.Errorf("failed to close TCP connection: %w", err))
	}

	tc.logger.Info("TCP connection closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (tc *TCPConnection) IsOpen() bool {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.isOpen && tc.conn != nil
}

func (tc *TCPConnection) currentConn() (net.Conn, error) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	if !tc.isOpen || tc.conn == nil {
		return nil, ErrNotOpen
	}
	return tc.conn, nil
}

// Write writes data to the socket
func (tc *TCPConnection) Write(ctx context.Context, data []byte) error {
	conn, err := tc.currentConn()
	if err != nil {
		return ClassifyError(OpWrite, err)
	}

	deadline := time.Time{}
	if tc.config.WriteTimeout > 0 {
		deadline = time.Now().Add(tc.config.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return ClassifyError(OpWrite, err)
	}

	n, err := conn.Write(data)
	if err != nil {
		tc.recordError()
		tc.logger.Error("TCP write failed", zap.Error(err))
		return ClassifyError(OpWrite, fmt.Errorf("failed to write to TCP connection: %w", err))
	}

	tc.recordWrite(n)
	tc.logger.Debug("TCP write completed", zap.Int("bytes", n))
	return nil
}

// Read waits for data on the socket, re-arming a short deadline until data
// arrives or ctx is done
func (tc *TCPConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	conn, err := tc.currentConn()
	if err != nil {
		return nil, ClassifyError(OpRead, err)
	}

	poll := tc.config.ReadTimeout
	if poll <= 0 {
		poll = defaultTCPPollInterval
	}

	buffer := make([]byte, maxBytes)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := conn.SetReadDeadline(time.Now().Add(poll)); err != nil {
			return nil, ClassifyError(OpRead, err)
		}

		n, err := conn.Read(buffer)
		if n > 0 {
			tc.recordRead(n)
			data := make([]byte, n)
			copy(data, buffer[:n])
			return data, nil
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}

		if errors.Is(err, io.EOF) {
			tc.mutex.Lock()
			tc.peerClosed = true
			tc.mutex.Unlock()
		}
		tc.recordError()
		return nil, ClassifyError(OpRead, fmt.Errorf("failed to read from TCP connection: %w", err))
	}
}

// Probe fails once the peer closed the connection
func (tc *TCPConnection) Probe(ctx context.Context) error {
	tc.mutex.RLock()
	open, peerClosed := tc.isOpen && tc.conn != nil, tc.peerClosed
	tc.mutex.RUnlock()

	if !open {
		return ClassifyError(OpProbe, ErrNotOpen)
	}
	if peerClosed {
		return NewTransportError(KindLinkLost, OpProbe, io.EOF)
	}
	return ctx.Err()
}

// Type returns the transport type
func (tc *TCPConnection) Type() model.TransportType {
	return model.TransportTypeTCP
}

// Address returns host:port
func (tc *TCPConnection) Address() string {
	return net.JoinHostPort(tc.config.Host, strconv.Itoa(tc.config.Port))
}
