package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/facestream/internal/app"
	"github.com/MrWong99/facestream/internal/config"
	"github.com/MrWong99/facestream/internal/observe"
	"github.com/MrWong99/facestream/pkg/face/take"
	"github.com/MrWong99/facestream/pkg/stream"
)

// play streams one or more files to the target and exits. Files are takes
// (.json or .csv) or, with -audio, audio clips sent through the configured
// inference backends first.
func play(args []string) int {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file (optional)")
	audio := fs.Bool("audio", false, "treat files as audio clips and infer blendshapes first")
	fps := fs.Int("fps", 0, "frame rate for takes that do not carry one (default: playback.fps)")
	saveDir := fs.String("save", "", "with -audio, save each inferred take as CSV in this directory (default: inference.save_dir)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "facestream play: no files given")
		return 2
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "facestream: %v\n", err)
		return 1
	}
	if *fps > 0 {
		cfg.Playback.FPS = *fps
	}
	if *saveDir != "" {
		cfg.Inference.SaveDir = *saveDir
	}
	off := false
	cfg.Idle.Enabled = &off
	setupLogger(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []app.Option
	if *audio {
		reg := config.NewRegistry()
		registerBuiltinProviders(reg)
		inference, name, err := buildInference(cfg, reg, observe.DefaultMetrics())
		if err != nil {
			slog.Error("failed to build inference backends", "err", err)
			return 1
		}
		if inference == nil {
			slog.Error("-audio needs at least one inference backend in the config")
			return 1
		}
		opts = append(opts, app.WithInference(name, inference))
	}

	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		if err := application.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()
	player := application.Player()

	for _, path := range fs.Args() {
		var (
			stats stream.Stats
			err   error
		)
		if *audio {
			var clip []byte
			clip, err = os.ReadFile(path)
			if err == nil {
				stats, err = player.PlayAudio(ctx, clip)
			}
		} else {
			tk, lerr := take.Load(path, cfg.Playback.FPS)
			if lerr != nil {
				err = lerr
			} else {
				stats, err = player.Play(ctx, tk)
			}
		}
		if err != nil {
			slog.Error("play failed", "file", path, "err", err)
			return 1
		}
		fmt.Printf("%s: sent %d/%d frames, skipped %d, empty %d in %s\n",
			path, stats.Sent, stats.Frames, stats.Skipped, stats.Empty, stats.Elapsed.Round(time.Millisecond))
		if stats.Cancelled {
			return 130
		}
	}
	return 0
}
