package bridge

import "errors"

var (
	ErrDisconnected = errors.New("write dropped: hub disconnected")
	ErrNotConnected = errors.New("bridge not connected")
)
