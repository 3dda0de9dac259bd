// internal/discovery/tcp/scanner.go
package tcp

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"device-session/internal/discovery"
	"device-session/internal/model"
)

// Scanner checks which configured TCP serial bridges accept connections
type Scanner struct {
	logger  *zap.Logger
	targets []string
	timeout time.Duration
}

// NewScanner creates a TCP scanner for host:port targets. timeout <= 0 selects 3s.
func NewScanner(logger *zap.Logger, targets []string, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Scanner{
		logger:  logger.With(zap.String("scanner", "tcp")),
		targets: targets,
		timeout: timeout,
	}
}

// Target formats a host and port as a scanner target
func Target(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "tcp"
}

// IsAvailable reports whether any target is configured
func (s *Scanner) IsAvailable() bool {
	return len(s.targets) > 0
}

// Scan dials every target and reports the reachable ones
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	dialer := &net.Dialer{Timeout: s.timeout}

	var discovered []*discovery.DiscoveredDevice
	for _, target := range s.targets {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}

		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			s.logger.Debug("TCP bridge unreachable", zap.String("target", target), zap.Error(err))
			continue
		}
		conn.Close()

		discovered = append(discovered, &discovery.DiscoveredDevice{
			Transport:   model.TransportTypeTCP,
			Address:     target,
			Description: "TCP serial bridge",
			Confidence:  0.5,
		})
	}

	s.logger.Info("TCP scan completed", zap.Int("devices_found", len(discovered)))
	return discovered, nil
}
