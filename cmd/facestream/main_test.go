package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/facestream/internal/config"
	"github.com/MrWong99/facestream/internal/observe"
	"github.com/MrWong99/facestream/internal/resilience"
	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/provider/a2f"
	"github.com/MrWong99/facestream/pkg/provider/a2f/mock"
)

func TestRun_Dispatch(t *testing.T) {
	tests := []struct {
		args []string
		want int
	}{
		{[]string{"version"}, 0},
		{[]string{"bogus"}, 2},
		{[]string{"play"}, 2},
		{[]string{"serve", "-nope"}, 2},
	}
	for _, tc := range tests {
		if got := run(tc.args); got != tc.want {
			t.Errorf("run(%q) = %d, want %d", tc.args, got, tc.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := loadConfig(missing, false); err == nil {
		t.Error("required config: expected error for missing file")
	}
	cfg, err := loadConfig(missing, true)
	if err != nil {
		t.Fatalf("optional config: %v", err)
	}
	if cfg.Playback.FPS != config.Default().Playback.FPS {
		t.Errorf("optional config did not fall back to defaults: %+v", cfg.Playback)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("server: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(bad, true); err == nil {
		t.Error("optional config: malformed file must still fail")
	}
}

func TestBuildInference(t *testing.T) {
	t.Parallel()

	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	primary := &mock.Provider{GenerateErr: errors.New("down")}
	fallback := &mock.Provider{GenerateResult: face.Take{FPS: 30, Frames: face.RawSequence{{0.1}}}}
	reg := config.NewRegistry()
	reg.RegisterA2F("primary", func(config.ProviderEntry) (a2f.Provider, error) { return primary, nil })
	reg.RegisterA2F("fallback", func(config.ProviderEntry) (a2f.Provider, error) { return fallback, nil })

	cfg := config.Default()
	cfg.Inference.MaxFailures = 1
	cfg.Inference.ResetTimeout = time.Hour
	cfg.Inference.Backends = []config.ProviderEntry{
		{Name: "primary", BaseURL: "http://a"},
		{Name: "unknown", BaseURL: "http://b"},
		{Name: "fallback", BaseURL: "http://c"},
	}

	p, name, err := buildInference(cfg, reg, m)
	if err != nil {
		t.Fatalf("buildInference: %v", err)
	}
	if name != "primary" {
		t.Errorf("name = %q, want primary", name)
	}
	if _, err := p.Generate(context.Background(), []byte{1}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if fallback.CallCountGenerate != 1 {
		t.Errorf("fallback called %d times, want 1", fallback.CallCountGenerate)
	}

	g, ok := p.(*resilience.A2FGroup)
	if !ok {
		t.Fatalf("provider is %T, want *resilience.A2FGroup", p)
	}
	if st := g.States(); st["primary"] != resilience.StateOpen || len(st) != 2 {
		t.Errorf("states = %v, want primary open and two backends", st)
	}

	cfg.Inference.Backends = nil
	if p, _, err := buildInference(cfg, reg, m); err != nil || p != nil {
		t.Errorf("no backends: got %v, %v; want nil, nil", p, err)
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	p, err := reg.CreateA2F(config.ProviderEntry{Name: "neurosync", BaseURL: "http://127.0.0.1:5000/audio_to_blendshapes", FPS: 60})
	if err != nil {
		t.Fatalf("CreateA2F: %v", err)
	}
	if p == nil {
		t.Fatal("nil provider")
	}
}
