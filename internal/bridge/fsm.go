package bridge

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"
)

// Connection states
const (
	StateDisconnected = "disconnected"
	StateConnected    = "connected"
	StateFlashing     = "flashing"
)

// Connection events
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventFlash      = "flash"
	EventFlashed    = "flashed"
)

func newConnectionFSM() *fsm.FSM {
	events := fsm.Events{
		{Name: EventConnect, Src: []string{StateDisconnected}, Dst: StateConnected},
		{Name: EventDisconnect, Src: []string{StateConnected, StateFlashing}, Dst: StateDisconnected},
		{Name: EventFlash, Src: []string{StateConnected}, Dst: StateFlashing},
		{Name: EventFlashed, Src: []string{StateFlashing}, Dst: StateConnected},
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			log.Debug().Str("event", e.Event).Str("from", e.Src).Str("to", e.Dst).Msg("Connection state changed")
		},
	}

	return fsm.NewFSM(StateDisconnected, events, callbacks)
}
