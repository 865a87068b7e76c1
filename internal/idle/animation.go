// Package idle streams a procedural resting animation to the target between
// takes, so the rig never freezes on the last frame of the previous take.
package idle

import (
	"math"
	"time"

	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/face/livelink"
)

// Animation produces the raw frame to show at a given time since the idle
// loop started. Implementations must be pure functions of elapsed.
type Animation interface {
	Frame(elapsed time.Duration) face.RawFrame
}

// AnimationFunc adapts a plain function to [Animation].
type AnimationFunc func(elapsed time.Duration) face.RawFrame

// Frame implements [Animation].
func (f AnimationFunc) Frame(elapsed time.Duration) face.RawFrame { return f(elapsed) }

// Blink is the default idle animation: both eyes close and reopen once per
// Interval, and the inner brows drift slowly so the face does not look
// frozen between blinks.
type Blink struct {
	// Interval is the time between the starts of two blinks.
	Interval time.Duration

	// Duration is how long one blink takes from open to open.
	Duration time.Duration

	// BrowAmplitude is the peak BrowInnerUp value of the slow drift. Zero
	// disables the drift.
	BrowAmplitude float64

	// BrowPeriod is the period of the brow drift.
	BrowPeriod time.Duration
}

var _ Animation = Blink{}

// DefaultBlink returns a Blink with natural-looking parameters.
func DefaultBlink() Blink {
	return Blink{
		Interval:      4 * time.Second,
		Duration:      150 * time.Millisecond,
		BrowAmplitude: 0.08,
		BrowPeriod:    9 * time.Second,
	}
}

// Frame implements [Animation].
func (b Blink) Frame(elapsed time.Duration) face.RawFrame {
	frame := make(face.RawFrame, face.MaxChannels)

	if b.Interval > 0 && b.Duration > 0 {
		phase := elapsed % b.Interval
		if phase < b.Duration {
			// Half a sine: 0 → 1 (closed) → 0.
			v := math.Sin(math.Pi * float64(phase) / float64(b.Duration))
			frame[livelink.EyeBlinkLeft] = v
			frame[livelink.EyeBlinkRight] = v
		}
	}

	if b.BrowAmplitude > 0 && b.BrowPeriod > 0 {
		cycle := float64(elapsed%b.BrowPeriod) / float64(b.BrowPeriod)
		frame[livelink.BrowInnerUp] = b.BrowAmplitude * 0.5 * (1 - math.Cos(2*math.Pi*cycle))
	}

	return frame
}
