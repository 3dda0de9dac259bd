// internal/session/reader.go
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"device-session/internal/classifier"
	"device-session/internal/framing"
	"device-session/internal/model"
	"device-session/internal/protocol"
)

// discardPreviewLength caps the text carried by a line-too-long event
const discardPreviewLength = 256

// readLoop pulls chunks from the transport until ctx is cancelled or the link fails
func (s *Session) readLoop(ctx context.Context, conn *connection) {
	defer close(conn.readDone)

	for {
		data, err := conn.transport.Read(ctx, s.config.ReadBufferSize)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			err = protocol.ClassifyError(protocol.OpRead, err)
			if protocol.IsFatal(err) {
				s.connectionLost(conn, protocol.OpRead, err)
				return
			}

			s.mutex.Lock()
			current := s.currentLocked(conn.epoch)
			if current {
				s.reportTransportErrorLocked(protocol.OpRead, err)
			}
			s.mutex.Unlock()
			if !current {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.config.ReadErrorBackoff):
			}
			continue
		}

		if !s.processChunk(conn, data) {
			return
		}
	}
}

// processChunk frames and classifies one chunk and emits an event per line, in
// arrival order. It returns false once the connection is no longer current.
func (s *Session) processChunk(conn *connection, data []byte) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.currentLocked(conn.epoch) {
		return false
	}

	now := s.now()
	s.bytesReceived += uint64(len(data))
	s.lastActivity = now

	lines, err := conn.framer.Feed(data)
	for _, line := range lines {
		s.linesReceived++
		payload := classifier.Classify(line, now)
		s.logger.LogInbound(string(payload.Kind()), line)
		s.emitLocked(payload)
	}

	if err != nil {
		var framingErr *framing.FramingError
		text := ""
		if errors.As(err, &framingErr) {
			text = preview(framingErr.Discarded)
		}
		s.emitLocked(&model.ClassificationError{Text: text, Reason: classifier.ReasonLineTooLong})
	}

	return true
}

func preview(data []byte) string {
	text := strings.ToValidUTF8(string(data), "�")
	if len(text) <= discardPreviewLength {
		return text
	}
	return strings.ToValidUTF8(text[:discardPreviewLength], "") + "..."
}
