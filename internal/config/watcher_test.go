package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watcherValidYAML = `
server:
  log_level: info
playback:
  curve: smoothstep
`

const watcherUpdatedYAML = `
server:
  log_level: debug
playback:
  curve: linear
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// writeConfig writes content to path and moves its mtime forward by bump so
// the change is visible regardless of filesystem timestamp resolution.
func writeConfig(t *testing.T, path, content string, bump time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	mtime := time.Now().Add(bump)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

type changeRecorder struct {
	calls    int
	old, new *Config
}

func (r *changeRecorder) onChange(old, new *Config) {
	r.calls++
	r.old, r.new = old, new
}

func newTestWatcher(t *testing.T) (*Watcher, *changeRecorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facestream.yaml")
	writeConfig(t, path, watcherValidYAML, 0)

	rec := &changeRecorder{}
	w, err := NewWatcher(path, rec.onChange, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, rec, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	w, _, _ := newTestWatcher(t)
	cfg := w.Current()
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, LogInfo)
	}
	if cfg.Playback.FPS != 60 {
		t.Errorf("defaults not applied: playback.fps = %d", cfg.Playback.FPS)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	w, rec, path := newTestWatcher(t)
	writeConfig(t, path, watcherUpdatedYAML, time.Second)
	w.check()

	if rec.calls != 1 {
		t.Fatalf("onChange called %d times, want 1", rec.calls)
	}
	if rec.old.Server.LogLevel != LogInfo || rec.new.Server.LogLevel != LogDebug {
		t.Errorf("log levels old=%q new=%q, want info → debug", rec.old.Server.LogLevel, rec.new.Server.LogLevel)
	}
	if got := w.Current().Playback.Curve; got != "linear" {
		t.Errorf("Current().Playback.Curve = %q, want linear", got)
	}

	d := Diff(rec.old, rec.new)
	if !d.LogLevelChanged || !d.PlaybackChanged || !d.HotReloadable() {
		t.Errorf("Diff = %+v, want hot-reloadable log level and playback change", d)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()

	w, rec, path := newTestWatcher(t)
	writeConfig(t, path, watcherInvalidYAML, time.Second)
	w.check()

	if rec.calls != 0 {
		t.Errorf("onChange called %d times for invalid config, want 0", rec.calls)
	}
	if got := w.Current().Server.LogLevel; got != LogInfo {
		t.Errorf("Current() log_level = %q, want previous %q", got, LogInfo)
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()

	w, rec, path := newTestWatcher(t)
	mtime := time.Now().Add(time.Second)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	w.check()
	w.check()

	if rec.calls != 0 {
		t.Errorf("onChange called %d times for touch-only, want 0", rec.calls)
	}
}

func TestWatcher_MissingFileAfterStart(t *testing.T) {
	t.Parallel()

	w, rec, path := newTestWatcher(t)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	w.check()

	if rec.calls != 0 || w.Current() == nil {
		t.Errorf("calls=%d current=%v, want previous config kept", rec.calls, w.Current())
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()

	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	w, _, path := newTestWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeConfig(t, path, watcherUpdatedYAML, time.Second)
	deadline := time.After(2 * time.Second)
	for w.Current().Server.LogLevel != LogDebug {
		select {
		case <-deadline:
			t.Fatal("Run did not pick up the change")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
