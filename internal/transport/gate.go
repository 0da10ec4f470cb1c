package transport

import (
	"sync"
	"time"
)

// readGate holds chunk delivery while a write is in flight. A closed channel
// means delivery may proceed.
type readGate struct {
	mu    sync.Mutex
	ch    chan struct{}
	open  bool
	gen   uint64
	timer *time.Timer
}

func newReadGate() *readGate {
	ch := make(chan struct{})
	close(ch)
	return &readGate{ch: ch, open: true}
}

func (g *readGate) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.open {
		g.ch = make(chan struct{})
		g.open = false
	}
}

// start reopens the gate after delay. A stop issued before the delay elapses
// cancels the reopen.
func (g *readGate) start(delay time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if delay <= 0 {
		g.openLocked()
		return
	}
	gen := g.gen
	g.timer = time.AfterFunc(delay, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.gen == gen {
			g.openLocked()
		}
	})
}

func (g *readGate) openLocked() {
	if !g.open {
		close(g.ch)
		g.open = true
	}
}

func (g *readGate) isOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// opened returns a channel that is closed while the gate is open
func (g *readGate) opened() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch
}
