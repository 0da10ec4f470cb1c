package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisconnected     = errors.New("transport not connected")
	ErrFlashUnsupported = errors.New("flashing not supported by this transport")
	ErrNoDevice         = errors.New("no micro:bit found")
	ErrNoMountDir       = errors.New("no DAPLink mount directory configured")
)

// Transport carries raw serial bytes to and from a hub. Data callbacks are
// invoked from a single read goroutine, one END-terminated chunk per call,
// and the next read does not start until the callback returns.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	OnSerialData(fn func([]byte))
	OnDisconnect(fn func(error))
	SerialWrite(b []byte) error
	StopSerialRead()
	StartSerialRead(delay time.Duration)
	Flash(ctx context.Context, image []byte) error
	SerialNumber() string
}
