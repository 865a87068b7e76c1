// Package mock provides a test double for [a2f.Provider].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/provider/a2f"
)

var _ a2f.Provider = (*Provider)(nil)

// Provider is a mock implementation of [a2f.Provider].
type Provider struct {
	mu sync.Mutex

	// GenerateResult is returned by Generate.
	GenerateResult face.Take

	// GenerateErr, when non-nil, is returned by Generate instead.
	GenerateErr error

	// Calls records the audio passed to each Generate call.
	Calls [][]byte

	// CallCountGenerate records how many times Generate was called.
	CallCountGenerate int
}

// Generate implements [a2f.Provider].
func (p *Provider) Generate(ctx context.Context, audio []byte) (face.Take, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountGenerate++
	p.Calls = append(p.Calls, append([]byte(nil), audio...))
	if err := ctx.Err(); err != nil {
		return face.Take{}, err
	}
	if p.GenerateErr != nil {
		return face.Take{}, p.GenerateErr
	}
	return p.GenerateResult, nil
}
