// internal/framing/line_framer.go
package framing

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultMaxLineLength is the default ceiling for an unterminated line.
	DefaultMaxLineLength = 4096

	// Terminator separates lines on the wire. A trailing '\r' is removed by trimming.
	Terminator = '\n'
)

// ErrLineTooLong is wrapped by every FramingError.
var ErrLineTooLong = errors.New("line exceeds maximum length without terminator")

// FramingError reports an unterminated buffer that outgrew the ceiling.
// The discarded bytes are kept so the caller can surface them.
type FramingError struct {
	Limit     int
	Discarded []byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("%s: %d bytes pending, limit %d", ErrLineTooLong, len(e.Discarded), e.Limit)
}

func (e *FramingError) Unwrap() error {
	return ErrLineTooLong
}

// LineFramer accumulates a byte stream and yields complete, trimmed, non-empty lines.
//
// Bytes are only decoded once a terminator has been seen, so multi-byte sequences split
// across chunks survive intact. LineFramer is not safe for concurrent use; the owner
// serializes access.
type LineFramer struct {
	buf    []byte
	maxLen int
}

// NewLineFramer creates a framer. maxLen <= 0 selects DefaultMaxLineLength.
func NewLineFramer(maxLen int) *LineFramer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	return &LineFramer{maxLen: maxLen}
}

// Feed appends chunk and returns every line completed by it.
//
// If the retained fragment is longer than the ceiling afterwards, it is dropped and a
// *FramingError is returned alongside any lines completed before it.
func (f *LineFramer) Feed(chunk []byte) ([]string, error) {
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(f.buf, Terminator)
		if idx < 0 {
			break
		}
		if line := strings.TrimSpace(string(f.buf[:idx])); line != "" {
			lines = append(lines, line)
		}
		f.buf = f.buf[idx+1:]
	}

	// compact so the backing array does not grow with the stream
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:0]
	} else if cap(f.buf) > 2*f.maxLen {
		f.buf = append([]byte(nil), f.buf...)
	}

	if len(f.buf) > f.maxLen {
		discarded := f.buf
		f.buf = nil
		return lines, &FramingError{Limit: f.maxLen, Discarded: discarded}
	}

	return lines, nil
}

// Pending returns the number of buffered bytes without a terminator.
func (f *LineFramer) Pending() int {
	return len(f.buf)
}

// MaxLineLength returns the configured ceiling.
func (f *LineFramer) MaxLineLength() int {
	return f.maxLen
}

// Reset discards any partial line.
func (f *LineFramer) Reset() {
	f.buf = nil
}
