package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/facestream/pkg/provider/a2f"
)

// ErrProviderNotRegistered is returned by [Registry.CreateA2F] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// A2FFactory builds an inference provider from its configuration entry.
type A2FFactory func(ProviderEntry) (a2f.Provider, error)

// Registry maps inference provider names to their constructors. It is safe
// for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	a2f map[string]A2FFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{a2f: make(map[string]A2FFactory)}
}

// RegisterA2F registers an inference provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterA2F(name string, factory A2FFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.a2f[name] = factory
}

// CreateA2F instantiates the inference provider registered under entry.Name.
func (r *Registry) CreateA2F(entry ProviderEntry) (a2f.Provider, error) {
	r.mu.RLock()
	factory, ok := r.a2f[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: a2f/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create a2f/%q: %w", entry.Name, err)
	}
	return p, nil
}

// A2FNames returns the registered inference provider names in sorted order.
func (r *Registry) A2FNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.a2f))
	for n := range r.a2f {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
