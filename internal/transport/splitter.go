package transport

import (
	"bytes"

	"github.com/goodieshq/bitbridge/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	// maxPending bounds the bytes buffered while waiting for a SLIP_END
	maxPending = 4096
	// maxBuffered bounds everything held while delivery is stopped
	maxBuffered = 16 * maxPending
)

// splitter cuts a byte stream into chunks that each end with SLIP_END
type splitter struct {
	buf []byte
}

// push appends b to the buffered stream
func (s *splitter) push(b []byte) {
	s.buf = append(s.buf, b...)
	if len(s.buf) > maxBuffered {
		log.Warn().Int("bytes", len(s.buf)).Msg("Discarding serial data held while reads are stopped")
		s.buf = s.buf[:0]
		return
	}

	tail := len(s.buf) - (bytes.LastIndexByte(s.buf, protocol.SlipEnd) + 1)
	if tail > maxPending {
		log.Warn().Int("bytes", tail).Msg("Discarding serial data with no frame end")
		s.buf = s.buf[:len(s.buf)-tail]
	}
}

// ready reports whether a complete chunk is buffered
func (s *splitter) ready() bool {
	return bytes.IndexByte(s.buf, protocol.SlipEnd) >= 0
}

// next removes and returns the oldest complete chunk. The slice is owned by
// the caller.
func (s *splitter) next() ([]byte, bool) {
	i := bytes.IndexByte(s.buf, protocol.SlipEnd)
	if i < 0 {
		return nil, false
	}
	chunk := append([]byte(nil), s.buf[:i+1]...)
	n := copy(s.buf, s.buf[i+1:])
	s.buf = s.buf[:n]
	return chunk, true
}

// pending is the number of buffered bytes not yet delivered
func (s *splitter) pending() int {
	return len(s.buf)
}
