package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/provider/a2f"
)

// ErrAllFailed is returned by [A2FGroup.Generate] when no backend produced a
// take.
var ErrAllFailed = errors.New("resilience: all inference backends failed")

// Compile-time interface assertion.
var _ a2f.Provider = (*A2FGroup)(nil)

type a2fEntry struct {
	name     string
	provider a2f.Provider
	breaker  *Breaker
}

// A2FGroup implements [a2f.Provider] over an ordered list of inference
// backends, each behind its own [Breaker]. Generate tries the backends in
// order and skips those whose breaker is open.
type A2FGroup struct {
	cfg     Config
	entries []a2fEntry
}

// NewA2FGroup creates a group with primary as the preferred backend. cfg is
// the template for every backend's breaker; its Name is replaced by the
// backend name.
func NewA2FGroup(primary a2f.Provider, primaryName string, cfg Config) *A2FGroup {
	g := &A2FGroup{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends a backend tried after all earlier ones. Not safe to call
// concurrently with Generate.
func (g *A2FGroup) AddFallback(name string, p a2f.Provider) {
	cfg := g.cfg
	cfg.Name = name
	g.entries = append(g.entries, a2fEntry{name: name, provider: p, breaker: New(cfg)})
}

// Generate implements [a2f.Provider].
func (g *A2FGroup) Generate(ctx context.Context, audio []byte) (face.Take, error) {
	var errs []error
	for _, e := range g.entries {
		var take face.Take
		err := e.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			take, err = e.provider.Generate(ctx, audio)
			return err
		})
		if err == nil {
			return take, nil
		}
		if ctx.Err() != nil {
			return face.Take{}, ctx.Err()
		}
		slog.Warn("resilience: inference backend failed, trying next",
			"backend", e.name,
			"err", err,
		)
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
	}
	return face.Take{}, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// States returns the breaker state of every backend by name.
func (g *A2FGroup) States() map[string]State {
	out := make(map[string]State, len(g.entries))
	for _, e := range g.entries {
		out[e.name] = e.breaker.State()
	}
	return out
}
