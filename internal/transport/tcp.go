package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/goodieshq/bitbridge/internal/utils"
	"github.com/rs/zerolog/log"
)

// TCP reaches a hub through a raw TCP serial server such as ser2net, or the
// hubsim simulator
type TCP struct {
	stream
	addr        string
	dialTimeout time.Duration
}

type TCPOpts struct {
	Addr        string
	DialTimeout *time.Duration
}

func NewTCP(opts TCPOpts) *TCP {
	return &TCP{
		stream:      newStream(),
		addr:        opts.Addr,
		dialTimeout: utils.DefaultIfNil(opts.DialTimeout, 5*time.Second),
	}
}

func (t *TCP) Connect(ctx context.Context) error {
	if t.connected() {
		return nil
	}

	dialer := net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", t.addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	t.attach(conn)
	log.Info().Str("addr", t.addr).Msg("Connected to serial server")
	return nil
}

func (t *TCP) Disconnect() error {
	return t.detach()
}

// SerialNumber is the remote address, the closest thing a TCP link has to a
// device identity
func (t *TCP) SerialNumber() string {
	return t.addr
}

func (t *TCP) Flash(context.Context, []byte) error {
	return ErrFlashUnsupported
}
