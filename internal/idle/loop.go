package idle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/face/livelink"
	"github.com/MrWong99/facestream/pkg/stream"
)

// DefaultFPS is the idle frame rate. Idle motion is slow, so half the take
// rate is plenty.
const DefaultFPS = 30

// ErrSend wraps transport failures while streaming idle frames.
var ErrSend = errors.New("idle: send failed")

// Option is a functional option for configuring a [Loop].
type Option func(*Loop)

// WithFPS sets the idle frame rate. Non-positive values are ignored.
func WithFPS(fps int) Option {
	return func(l *Loop) {
		if fps > 0 {
			l.fps = fps
		}
	}
}

// WithClock replaces the time source used for pacing.
func WithClock(c stream.Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithEncoder sets the factory for the encoder owned by each Run. Defaults
// to a LiveLink encoder at the loop's frame rate.
func WithEncoder(newEncoder func(fps int) face.Encoder) Option {
	return func(l *Loop) {
		if newEncoder != nil {
			l.newEncoder = newEncoder
		}
	}
}

// WithTickHook registers a callback invoked for every emitted idle frame.
func WithTickHook(fn func(stream.Tick)) Option {
	return func(l *Loop) {
		l.onTick = fn
	}
}

// Loop streams an [Animation] at a fixed rate until cancelled.
//
// A Loop may be run many times, but not concurrently. Each Run owns a fresh
// encoder so idle frames never share channel state with take encoding.
type Loop struct {
	anim       Animation
	fps        int
	clock      stream.Clock
	newEncoder func(fps int) face.Encoder
	onTick     func(stream.Tick)
}

// New creates a Loop for anim. A nil anim uses [DefaultBlink].
func New(anim Animation, opts ...Option) *Loop {
	if anim == nil {
		anim = DefaultBlink()
	}
	l := &Loop{
		anim:  anim,
		fps:   DefaultFPS,
		clock: stream.RealClock{},
		newEncoder: func(fps int) face.Encoder {
			return livelink.New(livelink.WithFPS(fps))
		},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// FPS returns the idle frame rate.
func (l *Loop) FPS() int { return l.fps }

// Run sends one idle frame per tick on tr until ctx is cancelled, then
// returns nil. The transport is borrowed and never closed. A send failure
// aborts the loop with an error wrapping [ErrSend].
//
// When the loop falls more than one tick behind, it drops the missed ticks
// and continues from the current slot; idle motion has no timeline to keep.
func (l *Loop) Run(ctx context.Context, tr stream.Transport) error {
	enc := l.newEncoder(l.fps)
	tick := time.Second / time.Duration(l.fps)
	start := l.clock.Now()

	slog.Debug("idle: loop started", "fps", l.fps)
	defer slog.Debug("idle: loop stopped")

	for k := 0; ; k++ {
		if ctx.Err() != nil {
			return nil
		}

		expected := time.Duration(k) * tick
		elapsed := l.clock.Now().Sub(start)
		decision := stream.TickSendNow
		switch {
		case elapsed < expected:
			decision = stream.TickWait
			if err := l.clock.Sleep(ctx, expected-elapsed); err != nil {
				return nil
			}
		case elapsed > expected+tick:
			// Resync to the slot we are in.
			k = int(elapsed / tick)
			expected = time.Duration(k) * tick
		}
		lateness := elapsed - expected

		frame := l.anim.Frame(expected)
		if err := enc.ApplyFrame(frame); err != nil {
			slog.Debug("idle: frame partially rejected", "err", err)
		}
		wire, err := enc.Encode()
		if err != nil {
			return fmt.Errorf("idle: encode: %w", err)
		}
		if err := tr.Send(ctx, wire); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrSend, err)
		}

		if l.onTick != nil {
			l.onTick(stream.Tick{
				Index:    k,
				Decision: decision,
				Lateness: lateness,
			})
		}
	}
}
