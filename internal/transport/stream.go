package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const readBufferSize = 256

// stream is the read loop, read gate and callbacks shared by the serial and
// TCP transports
type stream struct {
	mu           sync.Mutex
	rwc          io.ReadWriteCloser
	cancel       context.CancelFunc
	done         chan struct{}
	onData       func([]byte)
	onDisconnect func(error)

	writeMu sync.Mutex
	gate    *readGate
}

func newStream() stream {
	return stream{gate: newReadGate()}
}

func (s *stream) OnSerialData(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = fn
}

func (s *stream) OnDisconnect(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = fn
}

// StopSerialRead holds delivery before the next chunk
func (s *stream) StopSerialRead() {
	s.gate.stop()
}

// StartSerialRead resumes delivery after delay
func (s *stream) StartSerialRead(delay time.Duration) {
	s.gate.start(delay)
}

func (s *stream) SerialWrite(b []byte) error {
	s.mu.Lock()
	rwc := s.rwc
	s.mu.Unlock()
	if rwc == nil {
		return ErrDisconnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := rwc.Write(b)
	return err
}

// attach starts reading from rwc. A new connection always starts with
// delivery open; holds from a previous connection do not carry over.
func (s *stream) attach(rwc io.ReadWriteCloser) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.gate.start(0)

	s.mu.Lock()
	s.rwc = rwc
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.readLoop(ctx, rwc, done)
}

// detach closes the connection and waits for the read loop to exit. It is a
// no-op when nothing is attached.
func (s *stream) detach() error {
	s.mu.Lock()
	rwc, cancel, done := s.rwc, s.cancel, s.done
	s.rwc, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if rwc == nil {
		return nil
	}
	cancel()
	err := rwc.Close()
	<-done
	return err
}

func (s *stream) connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rwc != nil
}

// readLoop delivers END-terminated chunks while the gate is open. Reading
// continues while delivery is held so that a dropped link is still noticed.
func (s *stream) readLoop(ctx context.Context, rwc io.ReadWriteCloser, done chan struct{}) {
	defer close(done)

	data := make(chan []byte, 16)
	errc := make(chan error, 1)
	go s.reader(ctx, rwc, data, errc)

	var sp splitter
	for {
		if s.gate.isOpen() {
			if chunk, ok := sp.next(); ok {
				s.deliver(chunk)
				continue
			}
		}

		var held <-chan struct{}
		if sp.ready() {
			held = s.gate.opened()
		}

		select {
		case <-ctx.Done():
			return
		case b := <-data:
			sp.push(b)
		case <-held:
		case err := <-errc:
			if ctx.Err() != nil {
				return
			}
			s.flush(&sp, data)
			if n := sp.pending(); n > 0 {
				log.Debug().Int("bytes", n).Msg("Dropping undelivered serial data")
			}
			s.lost(rwc, err)
			return
		}
	}
}

// flush delivers what the reader queued before it failed, as far as the gate
// allows
func (s *stream) flush(sp *splitter, data <-chan []byte) {
	for {
		select {
		case b := <-data:
			sp.push(b)
			continue
		default:
		}
		break
	}
	for s.gate.isOpen() {
		chunk, ok := sp.next()
		if !ok {
			return
		}
		s.deliver(chunk)
	}
}

func (s *stream) reader(ctx context.Context, rwc io.Reader, data chan<- []byte, errc chan<- error) {
	for {
		buf := make([]byte, readBufferSize)
		n, err := rwc.Read(buf)
		if n > 0 {
			select {
			case data <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errc <- err
			return
		}
	}
}

func (s *stream) deliver(chunk []byte) {
	s.mu.Lock()
	fn := s.onData
	s.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

// lost tears down a connection that failed underneath the read loop
func (s *stream) lost(rwc io.ReadWriteCloser, err error) {
	s.mu.Lock()
	if s.rwc != rwc {
		s.mu.Unlock()
		return
	}
	s.rwc = nil
	cancel := s.cancel
	s.cancel, s.done = nil, nil
	fn := s.onDisconnect
	s.mu.Unlock()

	cancel()
	_ = rwc.Close()
	log.Warn().Err(err).Msg("Serial connection lost")
	if fn != nil {
		fn(err)
	}
}
