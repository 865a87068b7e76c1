// Package stream paces a pre-encoded frame sequence onto a [Transport] in
// real time.
//
// Every frame k has a scheduled offset k/fps from the moment the start
// [Gate] opens. Before each send the streamer compares the elapsed time with
// that schedule: early frames wait for their slot, frames less than one tick
// late go out immediately, and frames more than one tick late are dropped.
// Lateness is measured against the fixed schedule rather than the previous
// send, so drift never accumulates and frames are never sent in bursts.
//
// Typical usage:
//
//	s := stream.New(stream.WithDialer(d))
//	gate := stream.NewGate()
//	go func() { <-audioStarted; gate.Signal() }()
//	stats, err := s.Stream(ctx, seq, 60, gate, nil)
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/facestream/pkg/face"
)

var (
	// ErrSend wraps a transport failure that aborted a stream.
	ErrSend = errors.New("stream: send failed")

	// ErrDial wraps a failure to open an owned transport.
	ErrDial = errors.New("stream: dial failed")

	// ErrNoTransport is returned when no transport was given and no dialer is
	// configured.
	ErrNoTransport = errors.New("stream: no transport and no dialer")

	// ErrBusy is returned when Stream is called while another stream is
	// running on the same Streamer.
	ErrBusy = errors.New("stream: streamer already running")

	// ErrInvalidFPS is returned for a non-positive frame rate.
	ErrInvalidFPS = errors.New("stream: frame rate must be positive")
)

// Option is a functional option for configuring a [Streamer].
type Option func(*Streamer)

// WithDialer sets the dialer used when Stream is called without a transport.
func WithDialer(d Dialer) Option {
	return func(s *Streamer) {
		s.dialer = d
	}
}

// WithClock replaces the wall clock. Intended for tests.
func WithClock(c Clock) Option {
	return func(s *Streamer) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithTickHook registers fn to be called synchronously for every frame slot.
// fn must return quickly; it runs on the pacing path.
func WithTickHook(fn func(Tick)) Option {
	return func(s *Streamer) {
		s.onTick = fn
	}
}

// WithStateHook registers fn to be called on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(s *Streamer) {
		s.onState = fn
	}
}

// Streamer delivers encoded sequences at a fixed frame rate. A Streamer runs
// at most one stream at a time but may be reused for consecutive streams.
type Streamer struct {
	dialer  Dialer
	clock   Clock
	onTick  func(Tick)
	onState func(State)

	running atomic.Bool
	state   atomic.Int32
}

// New creates a Streamer.
func New(opts ...Option) *Streamer {
	s := &Streamer{clock: RealClock{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Streamer) State() State {
	return State(s.state.Load())
}

func (s *Streamer) setState(st State) {
	s.state.Store(int32(st))
	if s.onState != nil {
		s.onState(st)
	}
}

// Stream sends seq over tr at fps frames per second once gate has fired. A
// nil gate starts immediately.
//
// When tr is nil the streamer dials its own transport through the configured
// [Dialer] before waiting on the gate, and closes it on every exit path. A
// transport supplied by the caller is borrowed and never closed.
//
// Context cancellation at any point is a normal stop: Stream returns the
// stats so far with Cancelled set and a nil error. A failed send aborts the
// stream with an error wrapping [ErrSend]; there is no reconnect.
func (s *Streamer) Stream(ctx context.Context, seq face.EncodedSequence, fps int, gate *Gate, tr Transport) (stats Stats, err error) {
	if fps <= 0 {
		return Stats{}, fmt.Errorf("%w: %d", ErrInvalidFPS, fps)
	}
	if !s.running.CompareAndSwap(false, true) {
		return Stats{}, ErrBusy
	}
	defer s.running.Store(false)
	defer s.setState(StateStopped)

	if tr == nil {
		if s.dialer == nil {
			return Stats{}, ErrNoTransport
		}
		owned, err := s.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Stats{Cancelled: true}, nil
			}
			return Stats{}, fmt.Errorf("%w: %w", ErrDial, err)
		}
		defer func() {
			if cerr := owned.Close(); cerr != nil {
				slog.Warn("stream: close owned transport", "err", cerr)
			}
		}()
		tr = owned
	}

	if gate != nil {
		s.setState(StateGatedWait)
		if err := gate.Wait(ctx); err != nil {
			return Stats{Cancelled: true}, nil
		}
	}

	s.setState(StateStreaming)
	slog.Debug("stream: started", "frames", len(seq), "fps", fps)

	stats, err = s.pace(ctx, seq, fps, tr)

	slog.Info("stream: finished",
		"frames", stats.Frames,
		"sent", stats.Sent,
		"skipped", stats.Skipped,
		"empty", stats.Empty,
		"elapsed", stats.Elapsed,
		"cancelled", stats.Cancelled,
	)
	return stats, err
}

// pace runs the send loop against a schedule anchored at the current time.
func (s *Streamer) pace(ctx context.Context, seq face.EncodedSequence, fps int, tr Transport) (stats Stats, err error) {
	tick := time.Second / time.Duration(fps)
	t0 := s.clock.Now()
	defer func() { stats.Elapsed = s.clock.Now().Sub(t0) }()

	for k, frame := range seq {
		if ctx.Err() != nil {
			stats.Cancelled = true
			return stats, nil
		}

		expected := slotOffset(k, fps)
		elapsed := s.clock.Now().Sub(t0)
		decision := decide(elapsed, expected, tick)
		stats.Frames++
		s.emitTick(Tick{Index: k, Decision: decision, Lateness: elapsed - expected, Empty: len(frame) == 0})

		switch decision {
		case TickSkip:
			stats.Skipped++
			continue
		case TickWait:
			if err := s.clock.Sleep(ctx, expected-elapsed); err != nil {
				stats.Cancelled = true
				return stats, nil
			}
		}

		if len(frame) == 0 {
			stats.Empty++
			continue
		}
		if err := tr.Send(ctx, frame); err != nil {
			if ctx.Err() != nil {
				stats.Cancelled = true
				return stats, nil
			}
			return stats, fmt.Errorf("%w: frame %d: %w", ErrSend, k, err)
		}
		stats.Sent++
	}
	return stats, nil
}

func (s *Streamer) emitTick(t Tick) {
	if s.onTick != nil {
		s.onTick(t)
	}
}

// slotOffset returns k/fps as a duration without accumulating rounding error.
func slotOffset(k, fps int) time.Duration {
	return time.Duration(int64(k) * int64(time.Second) / int64(fps))
}

// decide classifies a frame slot: early frames wait, frames at most one tick
// late are sent now, later frames are skipped.
func decide(elapsed, expected, tick time.Duration) TickDecision {
	switch {
	case elapsed < expected:
		return TickWait
	case elapsed > expected+tick:
		return TickSkip
	default:
		return TickSendNow
	}
}
