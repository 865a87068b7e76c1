// Package app wires the facestream subsystems into a running application.
//
// The App struct owns the full lifecycle: New dials the animation target and
// builds the player, Run keeps the idle animation alive between takes, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithDialer,
// WithInference, WithPlayerOptions). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MrWong99/facestream/internal/config"
	"github.com/MrWong99/facestream/internal/health"
	"github.com/MrWong99/facestream/internal/idle"
	"github.com/MrWong99/facestream/internal/resilience"
	"github.com/MrWong99/facestream/pkg/provider/a2f"
	"github.com/MrWong99/facestream/pkg/stream"
	"github.com/MrWong99/facestream/pkg/transport"
)

// ErrInferenceUnavailable is reported by the inference readiness check when
// every backend's breaker is open.
var ErrInferenceUnavailable = errors.New("app: every inference backend is open")

// breakerStates is implemented by inference groups that expose per-backend
// breaker state, such as [resilience.A2FGroup].
type breakerStates interface {
	States() map[string]resilience.State
}

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	dialer     stream.Dialer
	tr         stream.Transport
	a2f        a2f.Provider
	a2fName    string
	playerOpts []PlayerOption
	levelVar   *slog.LevelVar

	player *Player
	health *health.Handler

	mu      sync.Mutex
	current *config.Config

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDialer replaces the dialer built from the target config.
func WithDialer(d stream.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithInference sets the inference backend used for audio plays. name labels
// its metrics.
func WithInference(name string, p a2f.Provider) Option {
	return func(a *App) { a.a2fName, a.a2f = name, p }
}

// WithPlayerOptions passes extra options to the player, after the ones
// derived from the config.
func WithPlayerOptions(opts ...PlayerOption) Option {
	return func(a *App) { a.playerOpts = append(a.playerOpts, opts...) }
}

// WithLogLevel hands the App the level variable of the default logger so
// config reloads can change it.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// New creates an App from cfg. It dials the target synchronously; a target
// that cannot be reached fails New.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, current: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.dialer == nil {
		a.dialer = transport.Dialer(transportConfig(cfg.Target))
	}
	tr, err := a.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: dial target: %w", err)
	}
	a.tr = tr
	a.closers = append(a.closers, tr.Close)

	popts := []PlayerOption{
		WithTarget(cfg.Target.Subject, cfg.Target.DeviceID),
		WithPlayback(cfg.Playback),
	}
	if cfg.Idle.IsEnabled() {
		blink := idle.DefaultBlink()
		if cfg.Idle.BlinkInterval > 0 {
			blink.Interval = cfg.Idle.BlinkInterval
		}
		if cfg.Idle.BlinkDuration > 0 {
			blink.Duration = cfg.Idle.BlinkDuration
		}
		popts = append(popts, WithIdle(blink, cfg.Idle.FPS))
	}
	if a.a2f != nil {
		popts = append(popts, WithPlayerInference(a.a2fName, a.a2f))
		if cfg.Inference.SaveDir != "" {
			popts = append(popts, WithTakeArchive(cfg.Inference.SaveDir))
		}
	}
	popts = append(popts, a.playerOpts...)

	a.player, err = NewPlayer(tr, popts...)
	if err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("app: init player: %w", err)
	}

	a.health = health.New(a.checkers()...)
	return a, nil
}

// transportConfig converts the target section to a dial config.
func transportConfig(t config.TargetConfig) transport.Config {
	var header http.Header
	if len(t.Headers) > 0 {
		header = make(http.Header, len(t.Headers))
		for k, v := range t.Headers {
			header.Set(k, v)
		}
	}
	return transport.Config{
		Network:     t.Network,
		Address:     t.Address,
		DialTimeout: t.DialTimeout,
		Header:      header,
	}
}

// checkers returns the readiness checks for the running App.
func (a *App) checkers() []health.Checker {
	cs := []health.Checker{{
		Name: "player",
		Check: func(context.Context) error {
			if st := a.player.Status().State; st == StateStopped {
				return fmt.Errorf("player is %s", st)
			}
			return nil
		},
	}}
	if g, ok := a.a2f.(breakerStates); ok {
		cs = append(cs, health.Checker{
			Name: "inference",
			Check: func(context.Context) error {
				for _, s := range g.States() {
					if s != resilience.StateOpen {
						return nil
					}
				}
				return ErrInferenceUnavailable
			},
		})
	}
	return cs
}

// Player returns the player driving the target.
func (a *App) Player() *Player { return a.player }

// Register adds the health probes and the control API to mux.
func (a *App) Register(mux *http.ServeMux) {
	a.health.Register(mux)
	a.player.Register(mux)
}

// Run streams until ctx is cancelled or the idle loop fails.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app: started",
		"network", a.cfg.Target.Network,
		"address", a.cfg.Target.Address,
		"subject", a.cfg.Target.Subject,
		"idle", a.cfg.Idle.IsEnabled(),
	)
	return a.player.Run(ctx)
}

// Reload applies the hot-reloadable parts of next: log level and playback.
// Changes to other sections are logged and take effect after a restart.
func (a *App) Reload(next *config.Config) config.ConfigDiff {
	a.mu.Lock()
	d := config.Diff(a.current, next)
	a.current = next
	a.mu.Unlock()

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Slog())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.PlaybackChanged {
		if err := a.player.SetPlayback(next.Playback); err != nil {
			slog.Error("app: reject playback change", "err", err)
		} else {
			slog.Info("app: playback updated",
				"fps", next.Playback.FPS,
				"curve", next.Playback.Curve,
				"lead_in", next.Playback.LeadInFraction,
				"lead_out", next.Playback.LeadOutFraction,
			)
		}
	}
	if !d.HotReloadable() {
		slog.Warn("app: config changes require a restart", "sections", d.RestartRequired)
	}
	return d
}

// Shutdown releases the transport and other resources. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
