// Package prepare turns a raw take into a fully materialised
// [face.EncodedSequence] ready for real-time streaming.
//
// The take is split into three segments: the lead-in window (blended up from
// the rest pose), the steady middle (encoded as is), and the lead-out window
// (blended back to rest). All three run through a single [face.Pass] so the
// encoder's carried-forward channel state flows across the segment
// boundaries.
package prepare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/face/blend"
)

var (
	// ErrInvalidFPS is returned for takes with a non-positive frame rate.
	ErrInvalidFPS = errors.New("prepare: frame rate must be positive")

	// ErrNothingEncoded is returned when every frame of a take failed to
	// encode. The accompanying sequence is always empty.
	ErrNothingEncoded = errors.New("prepare: no frame could be encoded")
)

// Config controls the blend windows.
type Config struct {
	// LeadInFraction is the share of fps blended in at the start.
	// Zero disables the lead-in; see [DefaultConfig].
	LeadInFraction float64

	// LeadOutFraction is the share of fps blended out at the end.
	LeadOutFraction float64

	// Blender shapes the windows. Nil uses blend.New().
	Blender *blend.Blender
}

// DefaultConfig returns the standard 5% lead-in, 30% lead-out, smoothstep
// configuration.
func DefaultConfig() Config {
	return Config{
		LeadInFraction:  face.DefaultLeadInFraction,
		LeadOutFraction: face.DefaultLeadOutFraction,
		Blender:         blend.New(),
	}
}

// PreEncode encodes every frame of take through enc. enc must be a fresh
// encoder dedicated to this call.
//
// On success the returned sequence has exactly len(take.Frames) entries. A
// take too short for its blend windows yields [face.ErrSequenceTooShort]; a
// take where no frame encoded yields [ErrNothingEncoded] and an empty
// sequence. Individual frame faults are handled by [face.Pass] and reported
// in the returned stats.
func PreEncode(ctx context.Context, take face.Take, enc face.Encoder, cfg Config) (face.EncodedSequence, face.PassStats, error) {
	if take.FPS <= 0 {
		return nil, face.PassStats{}, fmt.Errorf("%w: %d", ErrInvalidFPS, take.FPS)
	}
	seq := take.Frames
	win := face.WindowsFor(take.FPS, cfg.LeadInFraction, cfg.LeadOutFraction)
	if err := win.Check(len(seq)); err != nil {
		return nil, face.PassStats{}, fmt.Errorf("prepare: %w", err)
	}

	b := cfg.Blender
	if b == nil {
		b = blend.New()
	}

	pass := face.NewPass(enc)
	out := make(face.EncodedSequence, 0, len(seq))

	out = b.In(seq, pass, out, win.LeadIn)

	steadyEnd := len(seq) - win.LeadOut
	for i := win.LeadIn; i < steadyEnd; i++ {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, pass.Stats(), fmt.Errorf("prepare: %w", err)
			}
		}
		out = pass.Append(out, seq[i])
	}

	out = b.Out(seq, pass, out, win.LeadOut)

	stats := pass.Stats()
	if stats.Encoded() == 0 {
		return face.EncodedSequence{}, stats, ErrNothingEncoded
	}
	if stats.Degraded > 0 || stats.Failed > 0 {
		slog.Warn("prepare: take encoded with faults",
			"frames", stats.Frames,
			"degraded", stats.Degraded,
			"failed", stats.Failed,
		)
	}
	slog.Debug("prepare: take encoded",
		"frames", len(out),
		"lead_in", win.LeadIn,
		"steady", win.Steady(len(seq)),
		"lead_out", win.LeadOut,
	)
	return out, stats, nil
}
