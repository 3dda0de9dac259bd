// internal/protocol/protocoltest/transport.go
package protocoltest

import (
	"context"
	"sync"

	"device-session/internal/model"
	"device-session/internal/protocol"
)

// Transport is a scripted in-memory protocol.Transport
type Transport struct {
	mu       sync.Mutex
	openErr  error
	writeErr error
	probeErr error
	open     bool
	closed   chan struct{}
	pending  []byte
	writes   []string
	probes   int
	closes   int

	reads    chan []byte
	readErrs chan error
}

// NewTransport creates a fake transport whose Open returns openErr
func NewTransport(openErr error) *Transport {
	return &Transport{
		openErr:  openErr,
		closed:   make(chan struct{}),
		reads:    make(chan []byte, 64),
		readErrs: make(chan error, 8),
	}
}

func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return t.openErr
	}
	t.open = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	if t.open {
		t.open = false
		close(t.closed)
	}
	return nil
}

func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *Transport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return protocol.ClassifyError(protocol.OpWrite, protocol.ErrNotOpen)
	}
	if t.writeErr != nil {
		return t.writeErr
	}
	t.writes = append(t.writes, string(data))
	return nil
}

func (t *Transport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return nil, protocol.ClassifyError(protocol.OpRead, protocol.ErrNotOpen)
	}
	if len(t.pending) > 0 {
		out := t.take(maxBytes)
		t.mu.Unlock()
		return out, nil
	}
	closed := t.closed
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-closed:
		return nil, protocol.ClassifyError(protocol.OpRead, protocol.ErrNotOpen)
	case err := <-t.readErrs:
		return nil, err
	case data := <-t.reads:
		t.mu.Lock()
		defer t.mu.Unlock()
		t.pending = append(t.pending, data...)
		return t.take(maxBytes), nil
	}
}

func (t *Transport) take(maxBytes int) []byte {
	n := len(t.pending)
	if maxBytes > 0 && n > maxBytes {
		n = maxBytes
	}
	out := append([]byte(nil), t.pending[:n]...)
	t.pending = t.pending[n:]
	return out
}

func (t *Transport) Probe(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probes++
	if !t.open {
		return protocol.ClassifyError(protocol.OpProbe, protocol.ErrNotOpen)
	}
	return t.probeErr
}

func (t *Transport) Type() model.TransportType { return model.TransportTypeSerial }

func (t *Transport) Address() string { return "fake0" }

// Feed queues bytes for the read side
func (t *Transport) Feed(data string) {
	t.reads <- []byte(data)
}

// FailRead makes the next pending Read return err
func (t *Transport) FailRead(err error) {
	t.readErrs <- err
}

// SetProbeError makes subsequent probes fail with err
func (t *Transport) SetProbeError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probeErr = err
}

// SetWriteError makes subsequent writes fail with err
func (t *Transport) SetWriteError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// Writes returns every successfully written chunk
func (t *Transport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// ProbeCount returns the number of Probe calls
func (t *Transport) ProbeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.probes
}

// CloseCount returns the number of Close calls
func (t *Transport) CloseCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Factory hands out fake transports. OpenErrors scripts the Open result of each
// successive transport; attempts beyond the script succeed.
type Factory struct {
	mu         sync.Mutex
	OpenErrors []error
	created    []*Transport
}

// NewFactory creates a factory with scripted open results
func NewFactory(openErrors ...error) *Factory {
	return &Factory{OpenErrors: openErrors}
}

func (f *Factory) NewTransport(ctx context.Context) (protocol.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var openErr error
	if i := len(f.created); i < len(f.OpenErrors) {
		openErr = f.OpenErrors[i]
	}
	t := NewTransport(openErr)
	f.created = append(f.created, t)
	return t, nil
}

// Describe mirrors protocol.Factory.Describe
func (f *Factory) Describe() (model.TransportType, string) {
	return model.TransportTypeSerial, "fake0"
}

// Created returns the number of transports handed out
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// Last returns the most recently created transport, or nil
func (f *Factory) Last() *Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// OpenCount returns how many created transports are currently open
func (f *Factory) OpenCount() int {
	f.mu.Lock()
	created := append([]*Transport(nil), f.created...)
	f.mu.Unlock()
	n := 0
	for _, t := range created {
		if t.IsOpen() {
			n++
		}
	}
	return n
}
