package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/face/blend"
	"github.com/MrWong99/facestream/pkg/face/livelink"
	"github.com/MrWong99/facestream/pkg/transport"
)

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr    = ":9464"
	DefaultDialTimeout   = 5 * time.Second
	DefaultIdleFPS       = 30
	DefaultBlinkInterval = 4 * time.Second
	DefaultBlinkDuration = 150 * time.Millisecond
	DefaultMaxFailures   = 3
	DefaultResetTimeout  = 30 * time.Second
	DefaultTimeout       = 30 * time.Second
)

// ValidProviderNames lists the known inference provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"neurosync"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected. An empty document yields the
// defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Target.Network == "" {
		cfg.Target.Network = transport.NetworkUDP
	}
	if cfg.Target.Address == "" && cfg.Target.Network == transport.NetworkUDP {
		cfg.Target.Address = transport.DefaultAddress
	}
	if cfg.Target.Subject == "" {
		cfg.Target.Subject = livelink.DefaultSubject
	}
	if cfg.Target.DialTimeout == 0 {
		cfg.Target.DialTimeout = DefaultDialTimeout
	}

	if cfg.Playback.FPS == 0 {
		cfg.Playback.FPS = face.DefaultFPS
	}
	if cfg.Playback.MaxChannels == 0 {
		cfg.Playback.MaxChannels = face.MaxChannels
	}
	if cfg.Playback.LeadInFraction == 0 {
		cfg.Playback.LeadInFraction = face.DefaultLeadInFraction
	}
	if cfg.Playback.LeadOutFraction == 0 {
		cfg.Playback.LeadOutFraction = face.DefaultLeadOutFraction
	}
	if cfg.Playback.Curve == "" {
		cfg.Playback.Curve = blend.CurveSmoothStep
	}

	if cfg.Idle.FPS == 0 {
		cfg.Idle.FPS = DefaultIdleFPS
	}
	if cfg.Idle.BlinkInterval == 0 {
		cfg.Idle.BlinkInterval = DefaultBlinkInterval
	}
	if cfg.Idle.BlinkDuration == 0 {
		cfg.Idle.BlinkDuration = DefaultBlinkDuration
	}

	if cfg.Inference.MaxFailures == 0 {
		cfg.Inference.MaxFailures = DefaultMaxFailures
	}
	if cfg.Inference.ResetTimeout == 0 {
		cfg.Inference.ResetTimeout = DefaultResetTimeout
	}
	for i := range cfg.Inference.Backends {
		b := &cfg.Inference.Backends[i]
		if b.Timeout == 0 {
			b.Timeout = DefaultTimeout
		}
		if b.FPS == 0 {
			b.FPS = cfg.Playback.FPS
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Target
	switch strings.ToLower(cfg.Target.Network) {
	case "", transport.NetworkUDP:
	case transport.NetworkTCP, transport.NetworkWS, transport.NetworkWSS:
		if cfg.Target.Address == "" {
			errs = append(errs, fmt.Errorf("target.address is required for network %q", cfg.Target.Network))
		}
	default:
		errs = append(errs, fmt.Errorf("target.network %q is invalid; valid values: udp, tcp, ws, wss", cfg.Target.Network))
	}
	if cfg.Target.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("target.dial_timeout %v must not be negative", cfg.Target.DialTimeout))
	}
	if len(cfg.Target.Headers) > 0 && !strings.HasPrefix(strings.ToLower(cfg.Target.Network), "ws") {
		slog.Warn("target.headers are only sent for ws/wss targets", "network", cfg.Target.Network)
	}

	// Playback
	if cfg.Playback.FPS < 0 {
		errs = append(errs, fmt.Errorf("playback.fps %d must be positive", cfg.Playback.FPS))
	}
	if cfg.Playback.MaxChannels < 0 || cfg.Playback.MaxChannels > livelink.ChannelCount {
		errs = append(errs, fmt.Errorf("playback.max_channels %d is out of range [1, %d]", cfg.Playback.MaxChannels, livelink.ChannelCount))
	}
	if f := cfg.Playback.LeadInFraction; f < 0 || f > 1 {
		errs = append(errs, fmt.Errorf("playback.lead_in_fraction %.2f is out of range [0, 1]", f))
	}
	if f := cfg.Playback.LeadOutFraction; f < 0 || f > 1 {
		errs = append(errs, fmt.Errorf("playback.lead_out_fraction %.2f is out of range [0, 1]", f))
	}
	if _, err := blend.CurveByName(cfg.Playback.Curve); err != nil {
		errs = append(errs, fmt.Errorf("playback.curve: %w", err))
	}

	// Idle
	if cfg.Idle.FPS < 0 {
		errs = append(errs, fmt.Errorf("idle.fps %d must be positive", cfg.Idle.FPS))
	}
	if cfg.Idle.BlinkInterval < 0 || cfg.Idle.BlinkDuration < 0 {
		errs = append(errs, errors.New("idle.blink_interval and idle.blink_duration must not be negative"))
	}
	if cfg.Idle.BlinkInterval > 0 && cfg.Idle.BlinkDuration > cfg.Idle.BlinkInterval {
		errs = append(errs, fmt.Errorf("idle.blink_duration %v exceeds idle.blink_interval %v", cfg.Idle.BlinkDuration, cfg.Idle.BlinkInterval))
	}

	// Inference
	if cfg.Inference.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("inference.max_failures %d must not be negative", cfg.Inference.MaxFailures))
	}
	namesSeen := make(map[string]int, len(cfg.Inference.Backends))
	for i, b := range cfg.Inference.Backends {
		prefix := fmt.Sprintf("inference.backends[%d]", i)
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			validateProviderName(b.Name)
		}
		if b.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required", prefix))
		} else if prev, ok := namesSeen[b.Name+"|"+b.BaseURL]; ok {
			errs = append(errs, fmt.Errorf("%s duplicates inference.backends[%d]", prefix, prev))
		} else {
			namesSeen[b.Name+"|"+b.BaseURL] = i
		}
		if b.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout %v must not be negative", prefix, b.Timeout))
		}
		if b.FPS < 0 {
			errs = append(errs, fmt.Errorf("%s.fps %d must be positive", prefix, b.FPS))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not in [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown inference provider name; may be a typo or a third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
