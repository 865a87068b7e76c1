// Package mock provides test doubles for the interfaces in package stream:
// a recording [Transport], a [Dialer] that hands it out, and a simulated
// [Clock] whose Sleep advances time instantly.
//
// Typical usage:
//
//	clk := mock.NewClock(time.Unix(0, 0))
//	tr := &mock.Transport{}
//	s := stream.New(stream.WithClock(clk))
//	stats, err := s.Stream(ctx, seq, 60, nil, tr)
//	// inspect tr.Sent, tr.CallCountClose, clk.Sleeps
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/facestream/pkg/stream"
)

// Compile-time interface assertions.
var (
	_ stream.Transport = (*Transport)(nil)
	_ stream.Dialer    = (*Dialer)(nil)
	_ stream.Clock     = (*Clock)(nil)
)

// ErrSend is returned by Transport.Send for calls selected through FailSendAt
// when SendErr is nil.
var ErrSend = errors.New("mock: send failed")

// Transport is a mock implementation of [stream.Transport].
// Set the exported fields before use; inspect the recorded fields after.
type Transport struct {
	mu sync.Mutex

	// SendErr, when non-nil, is returned by every Send call.
	SendErr error

	// FailSendAt selects Send calls (0-based) that fail with ErrSend.
	FailSendAt map[int]bool

	// OnSend, when set, is called at the start of every Send with the call
	// index. Tests use it to advance a simulated clock or cancel a context.
	OnSend func(call int)

	// CloseErr is returned by Close.
	CloseErr error

	// Sent records a copy of every successfully sent frame.
	Sent [][]byte

	// SentAt records the simulated or real time of each successful send when
	// Clock is set.
	SentAt []time.Time

	// Clock, when set, stamps SentAt.
	Clock stream.Clock

	// CallCountSend records how many times Send was called.
	CallCountSend int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Send implements [stream.Transport].
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	call := t.CallCountSend
	t.CallCountSend++
	onSend := t.OnSend
	t.mu.Unlock()

	if onSend != nil {
		onSend(call)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	if t.FailSendAt[call] {
		return ErrSend
	}
	t.Sent = append(t.Sent, append([]byte(nil), frame...))
	if t.Clock != nil {
		t.SentAt = append(t.SentAt, t.Clock.Now())
	}
	return nil
}

// Close implements [stream.Transport].
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountClose++
	return t.CloseErr
}

// SentCount returns the number of frames sent so far. Safe to call while a
// stream is running.
func (t *Transport) SentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Sent)
}

// Closed reports whether Close has been called at least once.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CallCountClose > 0
}

// Dialer is a mock implementation of [stream.Dialer] that returns Transport.
type Dialer struct {
	mu sync.Mutex

	// Transport is returned by Dial.
	Transport *Transport

	// DialErr, when non-nil, is returned by Dial instead.
	DialErr error

	// CallCountDial records how many times Dial was called.
	CallCountDial int
}

// Dial implements [stream.Dialer].
func (d *Dialer) Dial(_ context.Context) (stream.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountDial++
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	return d.Transport, nil
}

// Clock is a simulated [stream.Clock]. Sleep advances the clock by the
// requested duration without blocking.
type Clock struct {
	mu  sync.Mutex
	now time.Time

	// Sleeps records every positive duration passed to Sleep.
	Sleeps []time.Duration
}

// NewClock returns a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now implements [stream.Clock].
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep implements [stream.Clock]. It returns ctx.Err() without advancing
// when ctx is already done.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sleeps = append(c.Sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Advance moves the clock forward by d, simulating work or scheduler delay.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
