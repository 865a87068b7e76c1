package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/facestream/internal/config"
	"github.com/MrWong99/facestream/internal/idle"
	"github.com/MrWong99/facestream/internal/observe"
	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/face/blend"
	"github.com/MrWong99/facestream/pkg/face/livelink"
	"github.com/MrWong99/facestream/pkg/face/prepare"
	"github.com/MrWong99/facestream/pkg/face/take"
	"github.com/MrWong99/facestream/pkg/provider/a2f"
	"github.com/MrWong99/facestream/pkg/stream"
)

var (
	// ErrNoInference is returned by [Player.PlayAudio] when no inference
	// backend is configured.
	ErrNoInference = errors.New("app: no inference backend configured")

	// ErrAlreadyRunning is returned when [Player.Run] is called twice
	// concurrently.
	ErrAlreadyRunning = errors.New("app: player already running")
)

// PlayerState is the coarse lifecycle state reported by [Player.Status].
type PlayerState string

const (
	// StateReady means no take is playing and no idle loop is running.
	StateReady PlayerState = "ready"

	// StateIdle means the idle animation is streaming.
	StateIdle PlayerState = "idle"

	// StatePreparing means a take is being inferred or pre-encoded.
	StatePreparing PlayerState = "preparing"

	// StatePlaying means a take is being paced onto the transport.
	StatePlaying PlayerState = "playing"

	// StateStopped means Run has returned.
	StateStopped PlayerState = "stopped"
)

// Status is a snapshot of the player for the control API.
type Status struct {
	State PlayerState `json:"state"`
	Plays int         `json:"plays"`
	Last  *PlayResult `json:"last,omitempty"`
}

// PlayResult summarises the most recent playback.
type PlayResult struct {
	Frames    int           `json:"frames"`
	Sent      int           `json:"sent"`
	Skipped   int           `json:"skipped"`
	Empty     int           `json:"empty"`
	Degraded  int           `json:"degraded"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Cancelled bool          `json:"cancelled"`
	Error     string        `json:"error,omitempty"`
}

// playback is the hot-reloadable part of the player configuration.
type playback struct {
	fps         int
	maxChannels int
	prep        prepare.Config
}

// PlayerOption is a functional option for [NewPlayer].
type PlayerOption func(*Player)

// WithIdle enables the idle animation between takes at fps frames per
// second. A nil anim uses [idle.DefaultBlink].
func WithIdle(anim idle.Animation, fps int) PlayerOption {
	return func(p *Player) {
		p.idleAnim = anim
		p.idleFPS = fps
		p.idleOn = true
	}
}

// WithPlayerInference sets the backend used by [Player.PlayAudio]. name labels
// inference metrics.
func WithPlayerInference(name string, prov a2f.Provider) PlayerOption {
	return func(p *Player) {
		p.a2fName, p.a2f = name, prov
	}
}

// WithTakeArchive saves every inferred take to dir as a LiveLink Face CSV
// before it is played. The directory is created by [NewPlayer].
func WithTakeArchive(dir string) PlayerOption {
	return func(p *Player) {
		p.archiveDir = dir
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) PlayerOption {
	return func(p *Player) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithClock replaces the clock used for pacing and frame timestamps.
func WithClock(c stream.Clock) PlayerOption {
	return func(p *Player) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithTarget sets the LiveLink subject and device id stamped on every frame.
// An empty deviceID keeps the generated one.
func WithTarget(subject, deviceID string) PlayerOption {
	return func(p *Player) {
		if subject != "" {
			p.subject = subject
		}
		if deviceID != "" {
			p.deviceID = deviceID
		}
	}
}

// WithPlayback sets the initial playback configuration.
func WithPlayback(cfg config.PlaybackConfig) PlayerOption {
	return func(p *Player) {
		p.initial = &cfg
	}
}

// Player owns the shared transport and alternates between the idle
// animation and take playback on it. Plays are serialised; the idle loop and
// the streamer never write the transport at the same time.
type Player struct {
	tr       stream.Transport
	streamer *stream.Streamer
	clock    stream.Clock
	metrics  *observe.Metrics
	a2f      a2f.Provider
	a2fName  string
	subject  string
	deviceID string
	initial  *config.PlaybackConfig

	archiveDir string

	idleOn   bool
	idleAnim idle.Animation
	idleFPS  int
	idle     *idle.Loop

	playback atomic.Pointer[playback]
	sem      chan struct{}
	idleErr  chan error

	mu       sync.Mutex
	state    PlayerState
	runCtx   context.Context
	idleStop context.CancelFunc
	idleDone chan error
	plays    int
	last     *PlayResult
}

// NewPlayer creates a Player streaming to tr. The transport is borrowed; the
// caller closes it after Run has returned.
func NewPlayer(tr stream.Transport, opts ...PlayerOption) (*Player, error) {
	p := &Player{
		tr:       tr,
		clock:    stream.RealClock{},
		subject:  livelink.DefaultSubject,
		deviceID: uuid.NewString(),
		sem:      make(chan struct{}, 1),
		idleErr:  make(chan error, 1),
		state:    StateReady,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}

	initial := config.Default().Playback
	if p.initial != nil {
		initial = *p.initial
	}
	if err := p.SetPlayback(initial); err != nil {
		return nil, err
	}

	if p.archiveDir != "" {
		if err := os.MkdirAll(p.archiveDir, 0o755); err != nil {
			return nil, fmt.Errorf("app: take archive: %w", err)
		}
	}

	p.streamer = stream.New(
		stream.WithClock(p.clock),
		stream.WithTickHook(p.metrics.TickHook(observe.SourceTake)),
		stream.WithStateHook(func(s stream.State) {
			slog.Debug("player: streamer state", "state", s)
		}),
	)
	if p.idleOn {
		p.idle = idle.New(p.idleAnim,
			idle.WithFPS(p.idleFPS),
			idle.WithClock(p.clock),
			idle.WithEncoder(p.NewEncoder),
			idle.WithTickHook(p.metrics.TickHook(observe.SourceIdle)),
		)
	}
	return p, nil
}

// SetPlayback replaces the playback configuration used by subsequent plays.
func (p *Player) SetPlayback(cfg config.PlaybackConfig) error {
	curve, err := blend.CurveByName(cfg.Curve)
	if err != nil {
		return fmt.Errorf("app: playback: %w", err)
	}
	p.playback.Store(&playback{
		fps:         cfg.FPS,
		maxChannels: cfg.MaxChannels,
		prep: prepare.Config{
			LeadInFraction:  cfg.LeadInFraction,
			LeadOutFraction: cfg.LeadOutFraction,
			Blender:         blend.New(blend.WithCurve(curve)),
		},
	})
	return nil
}

// NewEncoder returns a fresh LiveLink encoder stamped with the player's
// subject and device id.
func (p *Player) NewEncoder(fps int) face.Encoder {
	return livelink.New(
		livelink.WithSubject(p.subject),
		livelink.WithDeviceID(p.deviceID),
		livelink.WithFPS(fps),
		livelink.WithMaxChannels(p.playback.Load().maxChannels),
		livelink.WithClock(p.clock.Now),
	)
}

// Status returns a snapshot of the player state.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{State: p.state, Plays: p.plays}
	if p.last != nil {
		last := *p.last
		st.Last = &last
	}
	return st
}

func (p *Player) setState(s PlayerState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run keeps the idle animation alive between plays until ctx is cancelled.
// It returns nil on cancellation, or the error that stopped the idle loop.
func (p *Player) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.runCtx != nil {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.runCtx = ctx
	p.mu.Unlock()
	select {
	case <-p.idleErr:
	default:
	}

	slog.Info("player: running", "idle", p.idle != nil, "subject", p.subject, "device_id", p.deviceID)
	p.startIdle()

	var err error
	select {
	case <-ctx.Done():
	case err = <-p.idleErr:
		slog.Error("player: idle loop failed", "err", err)
	}
	p.stopIdle()

	p.mu.Lock()
	p.runCtx = nil
	p.state = StateStopped
	p.mu.Unlock()
	return err
}

// startIdle launches the idle loop if Run is active and no loop is running,
// and settles the reported state.
func (p *Player) startIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.runCtx == nil || p.runCtx.Err() != nil:
		if p.state != StateStopped {
			p.state = StateReady
		}
		return
	case p.idle == nil:
		p.state = StateReady
		return
	case p.idleStop != nil:
		p.state = StateIdle
		return
	}

	ctx, cancel := context.WithCancel(p.runCtx)
	done := make(chan error, 1)
	p.idleStop, p.idleDone = cancel, done
	p.state = StateIdle

	go func() {
		err := p.idle.Run(ctx, p.tr)
		if err != nil {
			select {
			case p.idleErr <- err:
			default:
			}
		}
		done <- err
	}()
}

// stopIdle cancels the idle loop and waits until it has stopped writing.
func (p *Player) stopIdle() {
	p.mu.Lock()
	cancel, done := p.idleStop, p.idleDone
	p.idleStop, p.idleDone = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Play pre-encodes take and streams it, taking the transport over from the
// idle loop for the duration. Plays are serialised: a second call waits for
// the first to finish or for its ctx to be cancelled.
//
// A take without a frame rate uses the configured playback fps.
// Cancellation mid-stream is a clean stop reported through
// [stream.Stats.Cancelled].
func (p *Player) Play(ctx context.Context, take face.Take) (stream.Stats, error) {
	if err := p.acquire(ctx); err != nil {
		return stream.Stats{}, err
	}
	defer p.release()
	return p.play(ctx, take)
}

// acquire takes the play slot. Whoever holds it owns the hand-off between
// the idle loop and the streamer.
func (p *Player) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Player) release() { <-p.sem }

// play runs one take. The caller holds the play slot.
func (p *Player) play(ctx context.Context, take face.Take) (stats stream.Stats, err error) {
	pb := p.playback.Load()
	if take.FPS <= 0 {
		take.FPS = pb.fps
	}

	ctx, span := observe.StartSpan(ctx, "player.play", trace.WithAttributes(
		attribute.Int("frames", len(take.Frames)),
		attribute.Int("fps", take.FPS),
	))
	start := p.clock.Now()
	var pass face.PassStats
	defer func() {
		p.finish(ctx, stats, pass, err, p.clock.Now().Sub(start))
		observe.EndSpan(span, err)
	}()

	p.setState(StatePreparing)
	seq, pass, err := p.prepare(ctx, take, pb)
	if err != nil {
		p.startIdle()
		return stream.Stats{}, err
	}

	gate := stream.NewGate()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.metrics.ActiveStreams.Add(gctx, 1)
		defer p.metrics.ActiveStreams.Add(context.Background(), -1)
		var err error
		stats, err = p.streamer.Stream(gctx, seq, take.FPS, gate, p.tr)
		return err
	})
	g.Go(func() error {
		p.stopIdle()
		p.setState(StatePlaying)
		gate.Signal()
		return nil
	})
	err = g.Wait()

	p.startIdle()
	return stats, err
}

// prepare runs the encoding pass for take inside its own span.
func (p *Player) prepare(ctx context.Context, take face.Take, pb *playback) (face.EncodedSequence, face.PassStats, error) {
	ctx, span := observe.StartSpan(ctx, "player.prepare")
	t0 := time.Now()
	seq, stats, err := prepare.PreEncode(ctx, take, p.NewEncoder(take.FPS), pb.prep)
	p.metrics.RecordPass(ctx, stats, time.Since(t0))
	span.SetAttributes(
		attribute.Int("degraded", stats.Degraded),
		attribute.Int("failed", stats.Failed),
	)
	observe.EndSpan(span, err)
	return seq, stats, err
}

// finish records the outcome of one play.
func (p *Player) finish(ctx context.Context, stats stream.Stats, pass face.PassStats, err error, d time.Duration) {
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case stats.Cancelled:
		status = "cancelled"
	}
	p.metrics.RecordPlay(ctx, status, d)

	res := &PlayResult{
		Frames:    stats.Frames,
		Sent:      stats.Sent,
		Skipped:   stats.Skipped,
		Empty:     stats.Empty,
		Degraded:  pass.Degraded,
		Failed:    pass.Failed,
		Elapsed:   stats.Elapsed,
		Cancelled: stats.Cancelled,
	}
	if err != nil {
		res.Error = err.Error()
	}
	p.mu.Lock()
	p.plays++
	p.last = res
	p.mu.Unlock()

	log := observe.Logger(ctx)
	if err != nil {
		log.Error("player: play failed", "status", status, "err", err)
		return
	}
	log.Info("player: play finished",
		"status", status,
		"sent", stats.Sent,
		"skipped", stats.Skipped,
		"duration", d,
	)
}

// PlayAudio turns audio into a take through the inference backend and plays
// it. The play slot is held from inference to the end of playback.
func (p *Player) PlayAudio(ctx context.Context, audio []byte) (stream.Stats, error) {
	if p.a2f == nil {
		return stream.Stats{}, ErrNoInference
	}
	if err := p.acquire(ctx); err != nil {
		return stream.Stats{}, err
	}
	defer p.release()

	p.setState(StatePreparing)
	ictx, span := observe.StartSpan(ctx, "player.infer", trace.WithAttributes(
		attribute.Int("audio_bytes", len(audio)),
	))
	t0 := time.Now()
	tk, err := p.a2f.Generate(ictx, audio)
	p.metrics.RecordInference(ictx, p.a2fName, time.Since(t0), err)
	observe.EndSpan(span, err)
	if err != nil {
		p.startIdle()
		return stream.Stats{}, fmt.Errorf("app: inference: %w", err)
	}
	if p.archiveDir != "" {
		p.archive(ctx, tk)
	}

	return p.play(ctx, tk)
}

// archive writes an inferred take to the archive directory as a LiveLink
// Face CSV. Failures are logged and do not stop playback.
func (p *Player) archive(ctx context.Context, tk face.Take) {
	if tk.FPS <= 0 {
		tk.FPS = p.playback.Load().fps
	}
	name := fmt.Sprintf("%s-%s.csv", p.clock.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	path := filepath.Join(p.archiveDir, name)
	log := observe.Logger(ctx)
	if err := writeTake(path, tk); err != nil {
		log.Warn("player: archive inferred take", "path", path, "err", err)
		return
	}
	log.Info("player: inferred take archived", "path", path, "frames", len(tk.Frames))
}

func writeTake(path string, tk face.Take) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := take.WriteCSV(f, tk); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
