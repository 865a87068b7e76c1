// Package face defines the data model shared by every stage of the facestream
// pipeline: raw blendshape frames as produced upstream, the encoded wire frames
// sent to an animation target, and the [Encoder] abstraction that turns one
// into the other.
//
// A typical flow:
//
//   - A [Take] (raw frames plus their source frame rate) is produced entirely
//     before anything else happens.
//   - An encoding [Pass] runs every frame through exactly one [Encoder]
//     instance, yielding an [EncodedSequence] aligned 1:1 with the take.
//   - The encoded sequence is paced onto the wire by package stream.
//
// This package lives under pkg/ because third-party targets are expected to
// implement [Encoder].
package face

import "errors"

const (
	// MaxChannels is the default number of channels consumed from a
	// [RawFrame]. Values at indices >= MaxChannels are ignored.
	MaxChannels = 51

	// DefaultFPS is the source frame rate assumed when a take does not carry one.
	DefaultFPS = 60
)

// RawFrame is an ordered vector of blendshape intensities, one value per
// animation channel. Values are application-defined scalars, typically in
// [0, 1] but not enforced.
//
// A frame may be longer than the target's channel count (extra values are
// ignored) or shorter (the missing channels keep whatever value the encoder
// last held).
type RawFrame []float64

// RawSequence is one complete animation take. It is treated as read-only once
// built.
type RawSequence []RawFrame

// Take bundles a [RawSequence] with the frame rate it was generated at.
type Take struct {
	// FPS is the source frame rate in frames per second.
	FPS int

	// Frames holds the raw frames in playback order.
	Frames RawSequence
}

// WireFrame is one serialised frame in the target's wire format. Its layout is
// owned by the [Encoder] that produced it.
//
// An empty WireFrame marks a frame that could not be encoded; streamers skip
// it instead of sending zero bytes.
type WireFrame []byte

// EncodedSequence is an ordered list of [WireFrame], index-aligned with the
// [RawSequence] it was produced from.
type EncodedSequence []WireFrame

// Encoder translates raw frames into wire frames through a live channel table.
//
// The channel table persists across frames: each frame overwrites only the
// channels it supplies. Encoding is therefore order dependent and an Encoder
// must not be shared between unrelated sequences or used from more than one
// goroutine at a time.
type Encoder interface {
	// SetChannel sets the value of a single channel. It returns an error for
	// indices outside the consumed channel range or for non-finite values; the
	// channel keeps its previous value in that case.
	SetChannel(index int, value float64) error

	// ApplyFrame sets channel i to frame[i] for every index the frame supplies
	// within the consumed range. Channels the frame does not supply keep their
	// previous value. Rejected values are reported as a joined error but do
	// not prevent the valid channels from being applied.
	ApplyFrame(frame RawFrame) error

	// Encode serialises the current channel table into a wire frame. It does
	// not reset the table.
	Encode() (WireFrame, error)
}

// ErrSequenceTooShort is returned when a sequence is not longer than the
// combined lead-in and lead-out windows, which would leave an empty or
// negative-length steady segment.
var ErrSequenceTooShort = errors.New("face: sequence shorter than blend windows")
