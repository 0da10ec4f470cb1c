package hubsim

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/goodieshq/bitbridge/internal/protocol"
	"github.com/goodieshq/bitbridge/internal/protocol/packets/v1"
	"github.com/rs/zerolog/log"
)

// Exchange is one scripted request and the bridge's answer to it
type Exchange struct {
	Request  *packets.Packet
	Response *packets.Packet
	Err      error
	Elapsed  time.Duration
}

// Simulator plays the part of a micro:bit hub behind a TCP serial server.
// Each bridge that connects is sent the script, one request at a time.
type Simulator struct {
	host       string
	port       uint16
	timeout    time.Duration
	script     []*packets.Packet
	hold       bool
	onExchange func(Exchange)
	codec      *packets.Codec
	slots      chan struct{}
}

type SimOpts struct {
	Host    string
	Port    uint16
	Timeout time.Duration
	Script  []*packets.Packet
	// Hold keeps the link open after the script until shutdown
	Hold       bool
	OnExchange func(Exchange)
}

func NewSimulator(opts SimOpts) *Simulator {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.OnExchange == nil {
		opts.OnExchange = LogExchange
	}

	// a hub talks to one bridge at a time
	slots := make(chan struct{}, 1)
	slots <- struct{}{}

	return &Simulator{
		host:       opts.Host,
		port:       opts.Port,
		timeout:    opts.Timeout,
		script:     opts.Script,
		hold:       opts.Hold,
		onExchange: opts.OnExchange,
		codec:      packets.NewCodec(),
		slots:      slots,
	}
}

func (s *Simulator) slotAcquire() bool {
	select {
	case <-s.slots:
		return true
	default:
		return false
	}
}

func (s *Simulator) slotRelease() {
	s.slots <- struct{}{}
}

// Run listens on the configured address and serves until ctx is done
func (s *Simulator) Run(ctx context.Context) error {
	address := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}
	log.Info().Str("addr", listener.Addr().String()).Msg("Hub simulator listening")
	return s.Serve(ctx, listener)
}

// Serve accepts bridge connections on listener until ctx is done
func (s *Simulator) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("Failed to accept connection")
			continue
		}

		if !s.slotAcquire() {
			log.Warn().Str("remote_addr", conn.RemoteAddr().String()).Msg("Hub busy, rejecting bridge")
			conn.Close()
			continue
		}

		log.Debug().Str("remote_addr", conn.RemoteAddr().String()).Msg("Bridge connected")
		go func() {
			defer s.slotRelease()
			if err := s.handle(ctx, conn); err != nil {
				log.Error().Err(err).Msg("Connection handler error")
			}
		}()
	}
}

// handle plays the script against one bridge connection
func (s *Simulator) handle(ctx context.Context, conn net.Conn) error {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	r := bufio.NewReader(conn)
	for _, req := range s.script {
		if ctx.Err() != nil {
			return nil
		}
		ex := s.exchange(conn, r, req)
		s.onExchange(ex)
		if ex.Err != nil {
			return ex.Err
		}
	}

	if s.hold {
		<-ctx.Done()
	}
	return nil
}

func (s *Simulator) exchange(conn net.Conn, r *bufio.Reader, req *packets.Packet) Exchange {
	ex := Exchange{Request: req}
	start := time.Now()

	conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if _, err := conn.Write(s.codec.FormatFrame(req)); err != nil {
		ex.Err = fmt.Errorf("failed to send request: %w", err)
		return ex
	}

	conn.SetReadDeadline(time.Now().Add(s.timeout))
	frame, err := r.ReadBytes(protocol.SlipEnd)
	if err != nil {
		ex.Err = fmt.Errorf("failed to read response: %w", err)
		return ex
	}
	ex.Elapsed = time.Since(start)

	body, err := protocol.SlipUnframe(frame)
	if err != nil {
		ex.Err = fmt.Errorf("bad response frame: %w", err)
		return ex
	}
	resp, err := s.codec.ParseFrame(body)
	if err != nil {
		ex.Err = fmt.Errorf("failed to decode response: %w", err)
		return ex
	}
	if resp.UID != req.UID {
		ex.Err = fmt.Errorf("response uid %d does not match request uid %d", resp.UID, req.UID)
	}
	ex.Response = resp
	return ex
}

// LogExchange writes an exchange to the global logger
func LogExchange(ex Exchange) {
	if ex.Err != nil {
		log.Error().Err(ex.Err).Uint16("uid", ex.Request.UID).Msg("Exchange failed")
		return
	}
	log.Info().
		Uint16("uid", ex.Request.UID).
		Str("query", ex.Request.Query()).
		Str("type", ex.Response.RequestType.String()).
		Str("value", ex.Response.At(0).String()).
		Dur("elapsed", ex.Elapsed).
		Msg("Response received")
}
