// Package config provides the configuration schema, loader, hot-reload
// watcher, and inference provider registry for facestream.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the matching [slog.Level]. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for facestream.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Target    TargetConfig    `yaml:"target"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Idle      IdleConfig      `yaml:"idle"`
	Inference InferenceConfig `yaml:"inference"`
}

// ServerConfig holds the control server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /healthz, /readyz and /metrics
	// (e.g., ":9464"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// TargetConfig describes the animation target frames are streamed to.
type TargetConfig struct {
	// Network is one of "udp" (LiveLink default), "tcp", "ws" or "wss".
	Network string `yaml:"network"`

	// Address is host:port for udp/tcp, or a URL or host:port for ws/wss.
	Address string `yaml:"address"`

	// Subject is the LiveLink subject name the target binds to.
	Subject string `yaml:"subject"`

	// DeviceID overrides the generated LiveLink device identifier.
	DeviceID string `yaml:"device_id"`

	// DialTimeout bounds connection setup.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// Headers are sent with the WebSocket handshake. Ignored for udp/tcp.
	Headers map[string]string `yaml:"headers"`
}

// PlaybackConfig controls encoding and pacing of takes. Hot-reloadable.
type PlaybackConfig struct {
	// FPS is used for takes that do not carry their own frame rate.
	FPS int `yaml:"fps"`

	// MaxChannels is the number of leading channels consumed from each raw
	// frame.
	MaxChannels int `yaml:"max_channels"`

	// LeadInFraction and LeadOutFraction size the blend windows as a fraction
	// of one second of frames.
	LeadInFraction  float64 `yaml:"lead_in_fraction"`
	LeadOutFraction float64 `yaml:"lead_out_fraction"`

	// Curve names the blend curve: linear, smoothstep or easeinoutsine.
	Curve string `yaml:"curve"`
}

// IdleConfig controls the animation streamed between takes.
type IdleConfig struct {
	// Enabled turns the idle loop on. Defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	// FPS is the idle frame rate.
	FPS int `yaml:"fps"`

	// BlinkInterval is the time between the starts of two blinks.
	BlinkInterval time.Duration `yaml:"blink_interval"`

	// BlinkDuration is how long one blink takes from open to open.
	BlinkDuration time.Duration `yaml:"blink_duration"`
}

// IsEnabled reports whether the idle loop should run.
func (c IdleConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// InferenceConfig lists the audio-to-blendshape backends, tried in order,
// and the circuit breaker guarding each of them.
type InferenceConfig struct {
	Backends []ProviderEntry `yaml:"backends"`

	// MaxFailures is the number of consecutive failures that open a
	// backend's breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker waits before probing again.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// SaveDir, when set, receives every inferred take as a LiveLink Face CSV.
	SaveDir string `yaml:"save_dir"`
}

// ProviderEntry configures one inference backend. Name selects the
// constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "neurosync").
	Name string `yaml:"name"`

	// BaseURL is the inference endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey is sent in the API-Key header if set.
	APIKey string `yaml:"api_key"`

	// Timeout bounds one inference request.
	Timeout time.Duration `yaml:"timeout"`

	// FPS is the frame rate the model produces. Zero means the playback FPS.
	FPS int `yaml:"fps"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}
