package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/facestream/internal/app"
	"github.com/MrWong99/facestream/internal/config"
	"github.com/MrWong99/facestream/internal/resilience"
	"github.com/MrWong99/facestream/pkg/face/livelink"
	"github.com/MrWong99/facestream/pkg/provider/a2f/mock"
	streammock "github.com/MrWong99/facestream/pkg/stream/mock"
)

// testConfig returns the default config with the idle loop disabled.
func testConfig() *config.Config {
	cfg := config.Default()
	off := false
	cfg.Idle.Enabled = &off
	cfg.Target.Subject = "test-face"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...app.Option) (*app.App, *streammock.Transport) {
	t.Helper()
	tr := &streammock.Transport{}
	clk := streammock.NewClock(time.Unix(0, 0))
	tr.Clock = clk
	opts = append([]app.Option{
		app.WithDialer(&streammock.Dialer{Transport: tr}),
		app.WithPlayerOptions(app.WithClock(clk)),
	}, opts...)

	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, tr
}

func TestNew_WithMockDialer(t *testing.T) {
	t.Parallel()

	d := &streammock.Dialer{Transport: &streammock.Transport{}}
	a, err := app.New(context.Background(), testConfig(), app.WithDialer(d))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Player() == nil {
		t.Fatal("Player() = nil")
	}
	if d.CallCountDial != 1 {
		t.Errorf("Dial called %d times, want 1", d.CallCountDial)
	}
}

func TestNew_DialFailure(t *testing.T) {
	t.Parallel()

	refused := errors.New("connection refused")
	_, err := app.New(context.Background(), testConfig(), app.WithDialer(&streammock.Dialer{DialErr: refused}))
	if !errors.Is(err, refused) {
		t.Errorf("err = %v, want dial error", err)
	}
}

func TestNew_InvalidPlaybackClosesTransport(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Playback.Curve = "bouncy"
	tr := &streammock.Transport{}
	if _, err := app.New(context.Background(), cfg, app.WithDialer(&streammock.Dialer{Transport: tr})); err == nil {
		t.Fatal("expected error for unknown curve")
	}
	if !tr.Closed() {
		t.Error("transport left open after failed New")
	}
}

func TestApp_PlayStampsConfiguredSubject(t *testing.T) {
	t.Parallel()

	a, tr := newTestApp(t, testConfig())
	if _, err := a.Player().Play(context.Background(), testTake(30, 30)); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if got := firstSubject(t, tr); got != "test-face" {
		t.Errorf("subject = %q, want test-face", got)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	a, tr := newTestApp(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if tr.CallCountClose != 1 {
		t.Errorf("Close called %d times, want 1", tr.CallCountClose)
	}
}

func TestApp_ShutdownDeadline(t *testing.T) {
	t.Parallel()

	a, tr := newTestApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown = %v, want context.Canceled", err)
	}
	if tr.Closed() {
		t.Error("closer ran after the deadline")
	}
}

func TestApp_Readiness(t *testing.T) {
	t.Parallel()

	group := resilience.NewA2FGroup(
		&mock.Provider{GenerateErr: errors.New("down")},
		"neurosync",
		resilience.Config{MaxFailures: 1, ResetTimeout: time.Hour},
	)
	a, _ := newTestApp(t, testConfig(), app.WithInference("neurosync", group))
	mux := http.NewServeMux()
	a.Register(mux)

	readyz := func() (int, map[string]string) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		var body struct {
			Checks map[string]string `json:"checks"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return rec.Code, body.Checks
	}

	if code, checks := readyz(); code != http.StatusOK || checks["player"] != "ok" || checks["inference"] != "ok" {
		t.Fatalf("readyz = %d %v, want all ok", code, checks)
	}

	if _, err := a.Player().PlayAudio(context.Background(), []byte{1}); err == nil {
		t.Fatal("expected inference failure")
	}
	if code, checks := readyz(); code != http.StatusServiceUnavailable || checks["inference"] == "ok" {
		t.Errorf("readyz after breaker opened = %d %v, want inference failing", code, checks)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /status = %d", rec.Code)
	}
}

func TestApp_SaveDirArchivesInferredTakes(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Inference.SaveDir = t.TempDir()
	prov := &mock.Provider{GenerateResult: testTake(20, 30)}
	a, _ := newTestApp(t, cfg, app.WithInference("neurosync", prov))

	if _, err := a.Player().PlayAudio(context.Background(), []byte("RIFF")); err != nil {
		t.Fatalf("PlayAudio: %v", err)
	}
	files, err := filepath.Glob(filepath.Join(cfg.Inference.SaveDir, "*.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("archived %d takes, want 1", len(files))
	}
}

func TestApp_Reload(t *testing.T) {
	t.Parallel()

	lv := new(slog.LevelVar)
	cfg := testConfig()
	a, _ := newTestApp(t, cfg, app.WithLogLevel(lv))

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Playback.Curve = "linear"
	next.Target.Address = "10.0.0.9:11111"

	d := a.Reload(next)
	if !d.LogLevelChanged || !d.PlaybackChanged {
		t.Errorf("diff = %+v, want log level and playback changes", d)
	}
	if d.HotReloadable() {
		t.Error("target change reported as hot-reloadable")
	}
	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}

	// The next reload diffs against the applied config.
	if d := a.Reload(next); d.LogLevelChanged || d.PlaybackChanged || !d.HotReloadable() {
		t.Errorf("second reload diff = %+v, want empty", d)
	}
}

func firstSubject(t *testing.T, tr *streammock.Transport) string {
	t.Helper()
	if len(tr.Sent) == 0 {
		t.Fatal("nothing sent")
	}
	pkt, err := livelink.Decode(tr.Sent[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return pkt.Subject
}
