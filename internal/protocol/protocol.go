// internal/protocol/protocol.go
package protocol

import (
	"context"
	"sync/atomic"
	"time"

	"device-session/internal/model"
)

// Transport is an opened byte-duplex link to a device
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication. Read suspends until at least one byte arrives, ctx is done or
	// the link fails; it never returns (nil, nil) while open.
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	// Probe is a low-level liveness check against the link, not a protocol command
	Probe(ctx context.Context) error

	// Transport information
	Type() model.TransportType
	Address() string
}

// TransportStats provides transport-level counters
type TransportStats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	ErrorCount   int64     `json:"error_count"`
	LastActivity time.Time `json:"last_activity"`
}

// StatsProvider is implemented by transports that keep counters
type StatsProvider interface {
	Stats() TransportStats
}

// counters are embedded by the concrete transports
type counters struct {
	bytesWritten atomic.Int64
	bytesRead    atomic.Int64
	errorCount   atomic.Int64
	lastActivity atomic.Int64
}

func (c *counters) recordWrite(n int) {
	c.bytesWritten.Add(int64(n))
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *counters) recordRead(n int) {
	c.bytesRead.Add(int64(n))
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *counters) recordError() {
	c.errorCount.Add(1)
}

// Stats returns a snapshot of the counters
func (c *counters) Stats() TransportStats {
	s := TransportStats{
		BytesWritten: c.bytesWritten.Load(),
		BytesRead:    c.bytesRead.Load(),
		ErrorCount:   c.errorCount.Load(),
	}
	if ts := c.lastActivity.Load(); ts > 0 {
		s.LastActivity = time.Unix(0, ts)
	}
	return s
}
