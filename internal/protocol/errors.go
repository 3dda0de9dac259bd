// internal/protocol/errors.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/google/gousb"
	"go.bug.st/serial"
)

// ErrNotOpen is returned by operations on a transport that is not open
var ErrNotOpen = errors.New("transport not open")

// ErrorKind categorizes transport failures
type ErrorKind string

const (
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindPermissionDenied ErrorKind = "PERMISSION_DENIED"
	KindAlreadyInUse     ErrorKind = "ALREADY_IN_USE"
	KindLinkLost         ErrorKind = "LINK_LOST"
	KindOther            ErrorKind = "OTHER"
)

// Operations reported in TransportError.Op
const (
	OpOpen  = "open"
	OpRead  = "read"
	OpWrite = "write"
	OpProbe = "probe"
	OpClose = "close"
)

var kindHints = map[ErrorKind]string{
	KindNotFound:         "device not found: check the USB connection and the configured port",
	KindPermissionDenied: "permission denied: add the user to the dialout group or adjust udev rules",
	KindAlreadyInUse:     "port already in use: close other serial monitors or flashing tools",
	KindLinkLost:         "link lost: the device was unplugged or reset",
}

// TransportError is a classified failure of a transport operation
type TransportError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the link can no longer be used
func (e *TransportError) Fatal() bool {
	return e.Kind == KindLinkLost || e.Kind == KindAlreadyInUse
}

// Hint returns a user-facing remedy for the error kind
func (e *TransportError) Hint() string {
	return kindHints[e.Kind]
}

// NewTransportError builds a TransportError with an explicit kind
func NewTransportError(kind ErrorKind, op string, err error) *TransportError {
	return &TransportError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindOther when err is not a TransportError
func KindOf(err error) ErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindOther
}

// IsFatal reports whether err is a fatal TransportError
func IsFatal(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Fatal()
}

// ClassifyError wraps err into a TransportError for op. Errors that are already
// classified are returned unchanged.
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return err
	}

	// cancellation is the caller's doing, not a link failure
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return &TransportError{Kind: classifyKind(op, err), Op: op, Err: err}
}

func classifyKind(op string, err error) ErrorKind {
	// vanished is how a missing device reads: not found while opening, lost afterwards
	vanished := KindLinkLost
	if op == OpOpen {
		vanished = KindNotFound
	}

	if errors.Is(err, ErrNotOpen) {
		return KindLinkLost
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return classifyPortError(portErr.Code(), vanished)
	}
	var portErrValue serial.PortError
	if errors.As(err, &portErrValue) {
		return classifyPortError(portErrValue.Code(), vanished)
	}

	var usbErr gousb.Error
	if errors.As(err, &usbErr) {
		switch usbErr {
		case gousb.ErrorNoDevice:
			return vanished
		case gousb.ErrorNotFound:
			return KindNotFound
		case gousb.ErrorAccess:
			return KindPermissionDenied
		case gousb.ErrorBusy:
			return KindAlreadyInUse
		case gousb.ErrorIO, gousb.ErrorPipe:
			return KindLinkLost
		}
	}

	var status gousb.TransferStatus
	if errors.As(err, &status) {
		switch status {
		case gousb.TransferNoDevice, gousb.TransferError:
			return KindLinkLost
		}
	}

	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		return vanished
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES):
		return KindPermissionDenied
	case errors.Is(err, syscall.EBUSY):
		return KindAlreadyInUse
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH):
		return vanished
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.EIO), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
		return KindLinkLost
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNotFound
	}

	// Fallback to string matching for OS-level errors that aren't wrapped
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "access is denied"):
		return KindPermissionDenied
	case strings.Contains(msg, "busy"), strings.Contains(msg, "already in use"):
		return KindAlreadyInUse
	case strings.Contains(msg, "no such file"), strings.Contains(msg, "cannot find"),
		strings.Contains(msg, "not found"):
		return vanished
	case strings.Contains(msg, "device not configured"), strings.Contains(msg, "input/output error"),
		strings.Contains(msg, "no such device"), strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "device disconnected"), strings.Contains(msg, "port has been closed"):
		return KindLinkLost
	}

	return KindOther
}

func classifyPortError(code serial.PortErrorCode, vanished ErrorKind) ErrorKind {
	switch code {
	case serial.PortNotFound, serial.InvalidSerialPort:
		return vanished
	case serial.PortClosed:
		return KindLinkLost
	case serial.PortBusy:
		return KindAlreadyInUse
	case serial.PermissionDenied:
		return KindPermissionDenied
	default:
		return KindOther
	}
}
