package protocol

import "errors"

var (
	ErrShortHeader    = errors.New("packet shorter than header")
	ErrTruncatedValue = errors.New("payload value truncated")
	ErrNoFrameEnd     = errors.New("chunk has no SLIP_END")
	ErrEmptyFrame     = errors.New("chunk starts with SLIP_END")
	ErrBadEscape      = errors.New("invalid SLIP escape sequence")
)
