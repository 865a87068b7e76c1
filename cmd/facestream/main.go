// Command facestream streams blendshape animation to a LiveLink Face target.
//
// Usage:
//
//	facestream [serve] -config config.yaml
//	facestream play -config config.yaml take.json [take.csv ...]
//	facestream play -config config.yaml -audio [-save dir] clip.wav
//	facestream listen -addr :11111
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/MrWong99/facestream/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return serve(args)
	case "play":
		return play(args)
	case "listen":
		return listen(args)
	case "version":
		fmt.Println("facestream", version)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "facestream: unknown command %q (want serve, play, listen or version)\n", cmd)
		return 2
	}
}

// loadConfig reads path. When optional is set, a missing file yields the
// defaults instead of an error.
func loadConfig(path string, optional bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		if optional {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
	}
	return nil, err
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger returns a text logger whose level follows lvl, so config reloads
// can change it at runtime.
func newLogger(lvl *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// setupLogger installs the default logger at level and returns its level
// variable.
func setupLogger(level config.LogLevel) *slog.LevelVar {
	lvl := new(slog.LevelVar)
	lvl.Set(level.Slog())
	slog.SetDefault(newLogger(lvl))
	return lvl
}

// ── Startup summary ────────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       facestream startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	network := cfg.Target.Network
	if network == "" {
		network = "udp"
	}
	printRow("Target", network+" "+cfg.Target.Address)
	printRow("Subject", cfg.Target.Subject)
	printRow("Playback", fmt.Sprintf("%d fps, %s", cfg.Playback.FPS, cfg.Playback.Curve))
	if cfg.Idle.IsEnabled() {
		printRow("Idle", fmt.Sprintf("%d fps", cfg.Idle.FPS))
	} else {
		printRow("Idle", "(disabled)")
	}
	if len(cfg.Inference.Backends) == 0 {
		printRow("Inference", "(not configured)")
	}
	for _, b := range cfg.Inference.Backends {
		printRow("Inference", b.Name)
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(default)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
