// Package blend shapes the start and end of a blendshape sequence so the rig
// eases out of its rest pose into the take and back again.
//
// A [Blender] walks the first or last window of a sequence, scales every
// frame between the rest pose and the recorded pose by a [Curve], and feeds
// the result through a [face.Pass] so that blended frames are encoded in the
// same pass as the steady section.
package blend

import (
	"fmt"
	"math"
	"strings"
)

// Curve maps a normalised position t in [0, 1] to a weight in [0, 1].
// Curves are expected to be monotonically non-decreasing with Curve(0) == 0
// and Curve(1) == 1.
type Curve func(t float64) float64

// Linear ramps the weight at a constant rate.
func Linear(t float64) float64 {
	return clamp01(t)
}

// SmoothStep is the cubic Hermite ease 3t² − 2t³.
func SmoothStep(t float64) float64 {
	t = clamp01(t)
	return t * t * (3 - 2*t)
}

// EaseInOutSine follows half a cosine period.
func EaseInOutSine(t float64) float64 {
	t = clamp01(t)
	return (1 - math.Cos(math.Pi*t)) / 2
}

// Names accepted by [CurveByName].
const (
	CurveLinear        = "linear"
	CurveSmoothStep    = "smoothstep"
	CurveEaseInOutSine = "easeinoutsine"
)

// CurveByName resolves a configured curve name. Matching ignores case.
func CurveByName(name string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case CurveLinear:
		return Linear, nil
	case CurveSmoothStep, "":
		return SmoothStep, nil
	case CurveEaseInOutSine, "sine":
		return EaseInOutSine, nil
	default:
		return nil, fmt.Errorf("blend: unknown curve %q", name)
	}
}

func clamp01(t float64) float64 {
	return math.Max(0, math.Min(1, t))
}
