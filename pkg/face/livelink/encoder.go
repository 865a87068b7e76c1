// Package livelink implements [face.Encoder] for the LiveLink Face protocol
// understood by Unreal Engine's Live Link plugin.
//
// Each packet carries a version byte, the sending device id and the subject
// name (both length-prefixed, big-endian), a frame time
// (frame number plus sub-frame at the advertised frame rate), and the full
// table of 61 blendshape values. The receiving rig treats every packet as a
// complete snapshot, so the encoder keeps the channel table between frames and
// only the channels supplied by a raw frame change.
//
// Usage:
//
//	enc := livelink.New(livelink.WithSubject("face"), livelink.WithFPS(60))
//	_ = enc.ApplyFrame(frame)
//	pkt, err := enc.Encode()
package livelink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/facestream/pkg/face"
)

// Compile-time interface assertion.
var _ face.Encoder = (*Encoder)(nil)

const (
	// PacketVersion is the LiveLink Face packet version written by [Encoder.Encode].
	PacketVersion = 6

	// DefaultSubject is the subject name used when none is configured.
	DefaultSubject = "face"

	// DefaultPort is the UDP port the Live Link plugin listens on by default.
	DefaultPort = 11111

	// maxNameLen bounds the device id and subject name so packets stay well
	// inside one UDP datagram.
	maxNameLen = 256
)

var (
	// ErrChannelOutOfRange is returned by SetChannel for indices outside the
	// consumed channel range.
	ErrChannelOutOfRange = errors.New("livelink: channel index out of range")

	// ErrInvalidValue is returned by SetChannel for NaN or infinite values.
	ErrInvalidValue = errors.New("livelink: non-finite channel value")

	// ErrInvalidSubject is returned by Encode when the subject name is empty
	// or too long to be addressed by the receiver.
	ErrInvalidSubject = errors.New("livelink: invalid subject name")

	// ErrInvalidDeviceID is returned by Encode when the device id is too long.
	ErrInvalidDeviceID = errors.New("livelink: invalid device id")
)

// Option is a functional option for configuring an [Encoder].
type Option func(*Encoder)

// WithSubject sets the Live Link subject name the rig binds to. Defaults to
// [DefaultSubject].
func WithSubject(name string) Option {
	return func(e *Encoder) {
		e.subject = name
	}
}

// WithDeviceID overrides the device identifier. By default every encoder gets
// a fresh UUID.
func WithDeviceID(id string) Option {
	return func(e *Encoder) {
		e.deviceID = id
	}
}

// WithFPS sets the frame rate advertised in the frame-time fields. Defaults to
// [face.DefaultFPS]. Non-positive values are ignored.
func WithFPS(fps int) Option {
	return func(e *Encoder) {
		if fps > 0 {
			e.fps = uint32(fps)
		}
	}
}

// WithMaxChannels sets how many leading channels raw frames may drive.
// Defaults to [face.MaxChannels]; values are clamped to [1, ChannelCount].
func WithMaxChannels(n int) Option {
	return func(e *Encoder) {
		e.maxChannels = max(1, min(n, ChannelCount))
	}
}

// WithClock sets the time source used for the frame-time fields. Defaults to
// time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Encoder) {
		if now != nil {
			e.now = now
		}
	}
}

// Encoder holds a LiveLink Face channel table and serialises it into packets.
// Create one Encoder per encoding pass. Not safe for concurrent use.
type Encoder struct {
	deviceID    string
	subject     string
	fps         uint32
	denominator uint32
	maxChannels int
	now         func() time.Time

	channels [ChannelCount]float32
}

// New creates an Encoder with an all-zero channel table.
func New(opts ...Option) *Encoder {
	e := &Encoder{
		deviceID:    uuid.NewString(),
		subject:     DefaultSubject,
		fps:         face.DefaultFPS,
		denominator: 1,
		maxChannels: face.MaxChannels,
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetChannel sets one channel in [0, maxChannels). Out-of-range indices and
// non-finite values are rejected and leave the table unchanged.
func (e *Encoder) SetChannel(index int, value float64) error {
	if index < 0 || index >= e.maxChannels {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrChannelOutOfRange, index, e.maxChannels)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: channel %s = %v", ErrInvalidValue, channelNames[index], value)
	}
	e.channels[index] = float32(value)
	return nil
}

// ApplyFrame sets every channel the frame supplies within [0, maxChannels).
// Channels beyond the end of a short frame keep their previous value.
func (e *Encoder) ApplyFrame(frame face.RawFrame) error {
	var errs []error
	for i := 0; i < min(len(frame), e.maxChannels); i++ {
		if err := e.SetChannel(i, frame[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Channel returns the current value of the channel at index, or 0 when index
// is out of range.
func (e *Encoder) Channel(index int) float64 {
	if index < 0 || index >= ChannelCount {
		return 0
	}
	return float64(e.channels[index])
}

// Encode serialises the channel table into one LiveLink Face packet.
func (e *Encoder) Encode() (face.WireFrame, error) {
	if e.subject == "" || len(e.subject) > maxNameLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubject, e.subject)
	}
	if len(e.deviceID) > maxNameLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDeviceID, e.deviceID)
	}

	frameNumber, subFrame := frameTime(e.now(), e.fps)

	var buf bytes.Buffer
	buf.Grow(packetSize(e.deviceID, e.subject))

	buf.WriteByte(PacketVersion)
	_ = binary.Write(&buf, binary.BigEndian, int32(len(e.deviceID)))
	buf.WriteString(e.deviceID)
	_ = binary.Write(&buf, binary.BigEndian, int32(len(e.subject)))
	buf.WriteString(e.subject)
	_ = binary.Write(&buf, binary.BigEndian, frameNumber)
	_ = binary.Write(&buf, binary.BigEndian, subFrame)
	_ = binary.Write(&buf, binary.BigEndian, e.fps)
	_ = binary.Write(&buf, binary.BigEndian, e.denominator)
	buf.WriteByte(ChannelCount)
	_ = binary.Write(&buf, binary.BigEndian, e.channels)

	return buf.Bytes(), nil
}

// frameTime splits the time of day at t into a whole frame number and the
// fractional sub-frame at fps.
func frameTime(t time.Time, fps uint32) (uint32, float32) {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	frames := t.Sub(midnight).Seconds() * float64(fps)
	whole := math.Floor(frames)
	return uint32(whole), float32(frames - whole)
}

// packetSize returns the encoded size of a packet for the given identifiers.
func packetSize(deviceID, subject string) int {
	return 1 + 4 + len(deviceID) + 4 + len(subject) + 4*4 + 1 + 4*ChannelCount
}
