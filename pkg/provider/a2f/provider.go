// Package a2f defines the Provider interface for audio-to-face inference
// backends: services that turn a recorded utterance into a blendshape take.
//
// Implementations must be safe for concurrent use.
package a2f

import (
	"context"

	"github.com/MrWong99/facestream/pkg/face"
)

// Provider generates facial animation for a chunk of audio.
type Provider interface {
	// Generate returns the take for audio, an encoded audio file (typically
	// WAV). The take's frame rate is the rate the model was trained at.
	// Returns an error if the request fails or ctx is cancelled.
	Generate(ctx context.Context, audio []byte) (face.Take, error)
}
