package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodieshq/bitbridge/internal/metrics"
	"github.com/goodieshq/bitbridge/internal/protocol"
	"github.com/goodieshq/bitbridge/internal/protocol/packets/v1"
	"github.com/goodieshq/bitbridge/internal/session"
	"github.com/goodieshq/bitbridge/internal/transport"
	"github.com/goodieshq/bitbridge/internal/utils"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"
)

// Handler answers one decoded request
type Handler interface {
	Handle(ctx context.Context, req *packets.Packet) (*packets.Packet, error)
}

// Bridge is the serial side of the hub link. It de-frames chunks from the
// transport, passes requests to the handler one at a time and writes the
// framed responses back.
type Bridge struct {
	transport   transport.Transport
	handler     Handler
	session     *session.State
	codec       *packets.Codec
	resumeDelay time.Duration

	state *fsm.FSM
	lost  chan error
	held  atomic.Bool

	procMu sync.Mutex // one frame at a time

	ctxMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

type BridgeOpts struct {
	Transport transport.Transport
	Handler   Handler
	Session   *session.State
	Codec     *packets.Codec
	// ResumeDelay is how long reads stay stopped after a response is written
	ResumeDelay *time.Duration
}

func NewBridge(opts BridgeOpts) *Bridge {
	if opts.Session == nil {
		opts.Session = session.New()
	}
	if opts.Codec == nil {
		opts.Codec = packets.NewCodec()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &Bridge{
		transport:   opts.Transport,
		handler:     opts.Handler,
		session:     opts.Session,
		codec:       opts.Codec,
		resumeDelay: utils.DefaultIfNil(opts.ResumeDelay, 0),
		state:       newConnectionFSM(),
		lost:        make(chan error, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
	b.transport.OnSerialData(b.OnData)
	b.transport.OnDisconnect(b.onTransportLost)
	return b
}

// State is the current connection state
func (b *Bridge) State() string {
	return b.state.Current()
}

func (b *Bridge) Connected() bool {
	return !b.state.Is(StateDisconnected)
}

func (b *Bridge) Session() *session.State {
	return b.session
}

func (b *Bridge) Codec() *packets.Codec {
	return b.codec
}

// Lost delivers the cause each time the transport drops underneath the bridge
func (b *Bridge) Lost() <-chan error {
	return b.lost
}

func (b *Bridge) requestContext() context.Context {
	b.ctxMu.Lock()
	defer b.ctxMu.Unlock()
	return b.ctx
}

// Connect opens the transport and starts a new session
func (b *Bridge) Connect(ctx context.Context) error {
	b.procMu.Lock()
	defer b.procMu.Unlock()

	if !b.state.Is(StateDisconnected) {
		return nil
	}

	if err := b.transport.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	id, err := b.session.Begin(b.transport.SerialNumber())
	if err != nil {
		_ = b.transport.Disconnect()
		return fmt.Errorf("failed to start session: %w", err)
	}

	b.ctxMu.Lock()
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.ctxMu.Unlock()

	if err := b.state.Event(ctx, EventConnect); err != nil {
		return fmt.Errorf("connect transition: %w", err)
	}
	b.held.Store(false)
	metrics.SetConnected(true)

	select {
	case <-b.lost:
	default:
	}

	log.Info().
		Str("session", id.String()).
		Str("serial", b.transport.SerialNumber()).
		Msg("micro:bit connected")
	return nil
}

// Disconnect closes the transport and resets the session. In-flight requests
// are cancelled and their responses dropped.
func (b *Bridge) Disconnect() error {
	b.markDisconnected()
	if err := b.transport.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

func (b *Bridge) onTransportLost(err error) {
	if !b.markDisconnected() {
		return
	}
	log.Warn().Err(err).Msg("micro:bit disconnected")

	select {
	case b.lost <- err:
	default:
	}
}

// markDisconnected moves to the disconnected state and resets the session.
// It reports whether this call made the transition.
func (b *Bridge) markDisconnected() bool {
	if err := b.state.Event(context.Background(), EventDisconnect); err != nil {
		return false
	}

	b.ctxMu.Lock()
	b.cancel()
	b.ctxMu.Unlock()

	b.session.Reset()
	b.held.Store(false)
	metrics.SetConnected(false)
	return true
}

// OnData handles one chunk from the transport. Chunks must carry a complete
// frame ending in SLIP_END; anything else is dropped.
func (b *Bridge) OnData(chunk []byte) {
	b.procMu.Lock()
	defer b.procMu.Unlock()

	if b.state.Is(StateDisconnected) {
		metrics.RecordDroppedChunk("disconnected")
		log.Debug().Int("size", len(chunk)).Msg("Dropping chunk received while disconnected")
		return
	}

	body, err := protocol.SlipUnframe(chunk)
	switch {
	case errors.Is(err, protocol.ErrNoFrameEnd):
		metrics.RecordDroppedChunk("no_end")
		log.Debug().Int("size", len(chunk)).Msg("Dropping chunk without frame end")
		return
	case errors.Is(err, protocol.ErrEmptyFrame):
		metrics.RecordDroppedChunk("misaligned")
		log.Debug().Int("size", len(chunk)).Msg("Dropping misaligned chunk")
		return
	}

	count := b.session.IncPackets()

	var req *packets.Packet
	if err == nil {
		req, err = b.codec.ParseFrame(body)
	}

	var resp *packets.Packet
	if err == nil {
		resp, err = b.handler.Handle(b.requestContext(), req)
	}

	if err != nil {
		var hdr protocol.Header
		if req != nil {
			hdr = req.Header
		}
		log.Warn().
			Err(err).
			Uint64("packet", count).
			Uint16("uid", hdr.UID).
			Str("type", hdr.RequestType.String()).
			Msg("Request rejected")
		metrics.RecordPacket(hdr.RequestType, false)
		resp = packets.NewErrorResponse(hdr)
	} else {
		resp.SetBit(protocol.StatusOK)
		metrics.RecordPacket(req.RequestType, true)
	}

	if err := b.Write(resp); err != nil {
		log.Error().Err(err).Uint16("uid", resp.UID).Msg("Failed to write response")
	}
}

// Write frames pkt and sends it with reads stopped
func (b *Bridge) Write(pkt *packets.Packet) error {
	if b.state.Is(StateDisconnected) {
		return ErrDisconnected
	}

	frame := b.codec.FormatFrame(pkt)

	b.transport.StopSerialRead()
	b.session.SetPaused(true)
	err := b.transport.SerialWrite(frame)
	if !b.held.Load() {
		b.transport.StartSerialRead(b.resumeDelay)
		b.session.SetPaused(false)
	}

	if errors.Is(err, transport.ErrDisconnected) {
		return ErrDisconnected
	}
	if err != nil {
		return fmt.Errorf("serial write: %w", err)
	}

	log.Debug().
		Uint16("uid", pkt.UID).
		Str("type", pkt.RequestType.String()).
		Msg("Response written")
	return nil
}

// Pause stops serial reads until Resume, independently of writes
func (b *Bridge) Pause() {
	b.held.Store(true)
	b.transport.StopSerialRead()
	b.session.SetPaused(true)
}

func (b *Bridge) Resume() {
	b.held.Store(false)
	b.transport.StartSerialRead(0)
	b.session.SetPaused(false)
}

// Flash writes a firmware image to the connected board with reads paused
func (b *Bridge) Flash(ctx context.Context, image []byte) error {
	if err := b.state.Event(ctx, EventFlash); err != nil {
		if b.state.Is(StateDisconnected) {
			return ErrNotConnected
		}
		return fmt.Errorf("cannot flash while %s: %w", b.state.Current(), err)
	}

	start := time.Now()
	b.Pause()
	err := b.transport.Flash(ctx, image)
	b.Resume()

	// the board usually reboots and drops the link, leaving us disconnected
	if b.state.Is(StateFlashing) {
		_ = b.state.Event(ctx, EventFlashed)
	}

	if err != nil {
		return fmt.Errorf("flash failed: %w", err)
	}
	log.Info().
		Str("size", utils.DisplayBi(uint64(len(image)))).
		Str("elapsed", utils.DisplayTime(time.Since(start))).
		Msg("Firmware flashed")
	return nil
}

// Run keeps the bridge connected until ctx is done, reconnecting after retry
// when the link fails. A zero retry returns the first failure instead.
func (b *Bridge) Run(ctx context.Context, retry time.Duration) error {
	for {
		err := b.Connect(ctx)
		if err == nil {
			select {
			case <-ctx.Done():
				return b.Disconnect()
			case err = <-b.lost:
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if retry <= 0 {
			return err
		}

		log.Warn().Err(err).Str("retry", utils.DisplayTime(retry)).Msg("Hub link down, retrying")
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
