package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/facestream/internal/config"
	"github.com/MrWong99/facestream/internal/observe"
	"github.com/MrWong99/facestream/internal/resilience"
	"github.com/MrWong99/facestream/pkg/provider/a2f"
	"github.com/MrWong99/facestream/pkg/provider/a2f/neurosync"
)

func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterA2F("neurosync", func(entry config.ProviderEntry) (a2f.Provider, error) {
		var opts []neurosync.Option
		if entry.APIKey != "" {
			opts = append(opts, neurosync.WithAPIKey(entry.APIKey))
		}
		if entry.Timeout > 0 {
			opts = append(opts, neurosync.WithTimeout(entry.Timeout))
		}
		if entry.FPS > 0 {
			opts = append(opts, neurosync.WithFPS(entry.FPS))
		}
		return neurosync.New(entry.BaseURL, opts...)
	})

	for _, name := range reg.A2FNames() {
		slog.Debug("registered provider", "kind", "a2f", "name", name)
	}
}

// buildInference creates the configured backends and chains them behind
// circuit breakers, in config order. It returns a nil provider when no
// backend is configured.
func buildInference(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (a2f.Provider, string, error) {
	bcfg := resilience.Config{
		MaxFailures:  cfg.Inference.MaxFailures,
		ResetTimeout: cfg.Inference.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("inference breaker changed state", "backend", name, "from", from, "to", to)
			m.RecordBreakerTransition(context.Background(), name, to.String())
		},
	}

	var group *resilience.A2FGroup
	var names []string
	for _, entry := range cfg.Inference.Backends {
		p, err := reg.CreateA2F(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown inference backend, skipping", "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create inference backend %q: %w", entry.Name, err)
		}
		if group == nil {
			group = resilience.NewA2FGroup(p, entry.Name, bcfg)
		} else {
			group.AddFallback(entry.Name, p)
		}
		names = append(names, entry.Name)
	}
	if group == nil {
		return nil, "", nil
	}
	slog.Info("inference backends ready", "backends", names)
	return group, names[0], nil
}
