// Package resilience guards calls to remote collaborators, such as the
// blendshape inference service, with a three-state circuit breaker
// (closed → open → half-open).
//
// A breaker that has seen too many consecutive failures rejects calls
// immediately with [ErrCircuitOpen] until its reset timeout has passed, then
// lets a few probe calls through to decide whether the service recovered.
// Calls abandoned by the caller (context cancelled or timed out on the caller
// side) are not counted as service failures.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] while the breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [Breaker].
type Config struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker again, and the most probes allowed in flight. Default: 1.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition with the lock
	// released.
	OnStateChange func(name string, from, to State)

	// Now overrides the time source. Default: time.Now.
	Now func() time.Time
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probes      int
	probeWins   int
	transitions []transition
}

type transition struct{ from, to State }

// New creates a [Breaker]. Zero-value config fields take their defaults.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Execute runs fn if the breaker allows it and records the outcome. fn
// receives ctx unchanged. A failure caused by ctx itself being done is
// returned but not counted.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	b.mu.Lock()
	switch {
	case err == nil:
		b.onSuccess()
	case ctx.Err() != nil:
		// Caller gave up; say nothing about the service.
		if b.state == StateHalfOpen {
			b.probes--
		}
	default:
		b.onFailure()
	}
	pending := b.drainLocked()
	b.mu.Unlock()

	b.notify(pending)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.setLocked(StateHalfOpen)
		b.probes, b.probeWins = 0, 0
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenMax {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	if b.state == StateHalfOpen {
		b.probes++
	}
	pending := b.drainLocked()
	b.mu.Unlock()

	b.notify(pending)
	return nil
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	if b.state != StateHalfOpen {
		b.failures = 0
		return
	}
	b.probeWins++
	if b.probeWins >= b.cfg.HalfOpenMax {
		b.failures = 0
		b.setLocked(StateClosed)
	}
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	if b.state == StateHalfOpen {
		b.openedAt = b.cfg.Now()
		b.setLocked(StateOpen)
		return
	}
	b.failures++
	if b.failures >= b.cfg.MaxFailures {
		b.openedAt = b.cfg.Now()
		b.setLocked(StateOpen)
	}
}

func (b *Breaker) setLocked(to State) {
	if b.state == to {
		return
	}
	b.transitions = append(b.transitions, transition{from: b.state, to: to})
	b.state = to
}

func (b *Breaker) drainLocked() []transition {
	t := b.transitions
	b.transitions = nil
	return t
}

func (b *Breaker) notify(ts []transition) {
	for _, t := range ts {
		level := slog.LevelInfo
		if t.to == StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "resilience: circuit breaker state changed",
			"name", b.cfg.Name,
			"from", t.from.String(),
			"to", t.to.String(),
		)
		if b.cfg.OnStateChange != nil {
			b.cfg.OnStateChange(b.cfg.Name, t.from, t.to)
		}
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// Execute.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.failures, b.probes, b.probeWins = 0, 0, 0
	b.setLocked(StateClosed)
	pending := b.drainLocked()
	b.mu.Unlock()

	b.notify(pending)
}
