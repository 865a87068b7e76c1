// Package mock provides an in-memory implementation of [face.Encoder] for use
// in unit tests.
//
// The mock keeps a plain channel table and encodes it as MaxChannels
// big-endian float64 values, so tests can decode a wire frame with
// [Channels] and inspect exactly what the encoder held at the time. Calls are
// recorded and failures can be injected per Encode call.
//
// Typical usage:
//
//	enc := &mock.Encoder{FailEncodeAt: map[int]bool{3: true}}
//	pass := face.NewPass(enc)
//	out := pass.Append(nil, face.RawFrame{0.5})
//	vals := mock.Channels(out[0])
package mock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/facestream/pkg/face"
)

// Compile-time interface assertion.
var _ face.Encoder = (*Encoder)(nil)

// ErrEncode is the error returned by Encode calls selected through
// FailEncodeAt when EncodeErr is nil.
var ErrEncode = errors.New("mock: encode failed")

// Encoder is a mock implementation of [face.Encoder].
// Set the exported fields before use; inspect the recorded fields after.
type Encoder struct {
	mu sync.Mutex

	// Table is the live channel table.
	Table [face.MaxChannels]float64

	// EncodeErr, when non-nil, is returned by every Encode call.
	EncodeErr error

	// FailEncodeAt selects Encode calls (0-based) that fail with ErrEncode.
	FailEncodeAt map[int]bool

	// AppliedFrames records every frame passed to ApplyFrame, in order.
	AppliedFrames []face.RawFrame

	// CallCountSetChannel records how many times SetChannel was called.
	CallCountSetChannel int

	// CallCountEncode records how many times Encode was called.
	CallCountEncode int
}

// SetChannel implements [face.Encoder].
func (e *Encoder) SetChannel(index int, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setLocked(index, value)
}

func (e *Encoder) setLocked(index int, value float64) error {
	e.CallCountSetChannel++
	if index < 0 || index >= face.MaxChannels {
		return fmt.Errorf("mock: channel %d out of range", index)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("mock: channel %d: non-finite value %v", index, value)
	}
	e.Table[index] = value
	return nil
}

// ApplyFrame implements [face.Encoder] with carry-forward semantics.
func (e *Encoder) ApplyFrame(frame face.RawFrame) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make(face.RawFrame, len(frame))
	copy(cp, frame)
	e.AppliedFrames = append(e.AppliedFrames, cp)

	var errs []error
	for i := 0; i < min(len(frame), face.MaxChannels); i++ {
		if err := e.setLocked(i, frame[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Encode implements [face.Encoder].
func (e *Encoder) Encode() (face.WireFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	call := e.CallCountEncode
	e.CallCountEncode++
	if e.EncodeErr != nil {
		return nil, e.EncodeErr
	}
	if e.FailEncodeAt[call] {
		return nil, ErrEncode
	}

	out := make(face.WireFrame, face.MaxChannels*8)
	for i, v := range e.Table {
		binary.BigEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out, nil
}

// Channels decodes a wire frame produced by [Encoder.Encode] back into its
// channel values. It returns nil for frames of the wrong size.
func Channels(w face.WireFrame) []float64 {
	if len(w) != face.MaxChannels*8 {
		return nil
	}
	vals := make([]float64, face.MaxChannels)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.BigEndian.Uint64(w[i*8:]))
	}
	return vals
}
