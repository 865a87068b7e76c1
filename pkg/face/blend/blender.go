package blend

import (
	"gonum.org/v1/gonum/floats"

	"github.com/MrWong99/facestream/pkg/face"
)

// Option is a functional option for configuring a [Blender].
type Option func(*Blender)

// WithCurve sets the easing curve. Defaults to [SmoothStep]. A nil curve is
// ignored.
func WithCurve(c Curve) Option {
	return func(b *Blender) {
		if c != nil {
			b.curve = c
		}
	}
}

// WithRest sets the pose blended from and to. Defaults to the all-zero pose.
// Channels missing from rest are treated as zero.
func WithRest(rest face.RawFrame) Option {
	return func(b *Blender) {
		b.rest = append(face.RawFrame(nil), rest...)
	}
}

// Blender applies lead-in and lead-out curves. A Blender holds no per-take
// state and may be shared between passes.
type Blender struct {
	curve Curve
	rest  face.RawFrame
}

// New creates a Blender.
func New(opts ...Option) *Blender {
	b := &Blender{curve: SmoothStep}
	for _, o := range opts {
		o(b)
	}
	return b
}

// In blends the first window frames of seq from the rest pose into the
// recorded pose and appends their encodings to out. The weight of frame i is
// curve(i/(window-1)), so the first frame starts at the rest pose and the last
// one is at full strength. window is clamped to len(seq); window 0 appends
// nothing.
func (b *Blender) In(seq face.RawSequence, pass *face.Pass, out face.EncodedSequence, window int) face.EncodedSequence {
	window = min(window, len(seq))
	for i := range window {
		w := 1.0
		if window > 1 {
			w = b.curve(float64(i) / float64(window-1))
		}
		out = pass.Append(out, b.mix(seq[i], w))
	}
	return out
}

// Out blends the last window frames of seq from the recorded pose back to the
// rest pose and appends their encodings to out. The weight of frame i within
// the window is curve(1 - i/(window-1)), ending at the rest pose.
func (b *Blender) Out(seq face.RawSequence, pass *face.Pass, out face.EncodedSequence, window int) face.EncodedSequence {
	window = min(window, len(seq))
	start := len(seq) - window
	for i := range window {
		w := 0.0
		if window > 1 {
			w = b.curve(1 - float64(i)/float64(window-1))
		}
		out = pass.Append(out, b.mix(seq[start+i], w))
	}
	return out
}

// mix returns rest + w*(frame-rest) over the channels frame supplies. The
// result has the same length as frame so carry-forward in the encoder still
// applies to short frames.
func (b *Blender) mix(frame face.RawFrame, w float64) face.RawFrame {
	out := make(face.RawFrame, len(frame))
	rest := make(face.RawFrame, len(frame))
	copy(rest, b.rest)

	// out = w*frame + (1-w)*rest
	floats.ScaleTo(out, w, frame)
	floats.AddScaled(out, 1-w, rest)
	return out
}
