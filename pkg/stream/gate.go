package stream

import (
	"context"
	"sync"
)

// Gate is a one-shot start signal. A streamer waits on the gate before
// sending its first frame; any goroutine may fire it.
//
// Signal is idempotent and a fired gate never resets, so a Gate only controls
// the start of a stream and cannot pause one. The zero value is not usable;
// create gates with [NewGate].
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate returns an unfired gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Signal fires the gate, releasing every current and future waiter.
func (g *Gate) Signal() {
	g.once.Do(func() { close(g.ch) })
}

// Done returns a channel that is closed once the gate fires.
func (g *Gate) Done() <-chan struct{} {
	return g.ch
}

// Signalled reports whether the gate has fired.
func (g *Gate) Signalled() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate fires or ctx is done. It returns nil when the
// gate fired and ctx.Err() otherwise. A gate that has already fired returns
// immediately even if ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	default:
	}
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
