package face

import (
	"fmt"
	"math"
)

const (
	// DefaultLeadInFraction is the share of one second of frames used for the
	// blend-in window.
	DefaultLeadInFraction = 0.05

	// DefaultLeadOutFraction is the share of one second of frames used for the
	// blend-out window.
	DefaultLeadOutFraction = 0.30
)

// windowEpsilon absorbs binary floating point error so that 0.3*10 yields 3
// rather than 2.
const windowEpsilon = 1e-9

// Windows holds the number of frames blended at the start and end of a take.
type Windows struct {
	LeadIn  int
	LeadOut int
}

// WindowsFor derives the blend windows for a source frame rate. Each window is
// the fraction of fps rounded down; negative fractions are treated as zero.
//
// At 60 fps with the default fractions this yields a lead-in of 3 and a
// lead-out of 18 frames.
func WindowsFor(fps int, leadInFraction, leadOutFraction float64) Windows {
	return Windows{
		LeadIn:  windowFrames(fps, leadInFraction),
		LeadOut: windowFrames(fps, leadOutFraction),
	}
}

func windowFrames(fps int, fraction float64) int {
	if fps <= 0 || fraction <= 0 {
		return 0
	}
	return int(math.Floor(float64(fps)*fraction + windowEpsilon))
}

// Steady returns the length of the unblended middle segment for a sequence of
// n frames. The result is negative when the windows overlap.
func (w Windows) Steady(n int) int {
	return n - w.LeadIn - w.LeadOut
}

// Check reports [ErrSequenceTooShort] unless a sequence of n frames leaves a
// non-empty steady segment.
func (w Windows) Check(n int) error {
	if w.Steady(n) <= 0 {
		return fmt.Errorf("%w: %d frames, lead-in %d, lead-out %d", ErrSequenceTooShort, n, w.LeadIn, w.LeadOut)
	}
	return nil
}
