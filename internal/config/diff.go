package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PlaybackChanged is set when any playback field changed. Playback
	// settings apply to the next take without a restart.
	PlaybackChanged bool

	// RestartRequired names the sections whose changes only take effect after
	// a restart (server.listen_addr, target, idle, inference).
	RestartRequired []string
}

// HotReloadable reports whether every change in d can be applied without a
// restart.
func (d ConfigDiff) HotReloadable() bool {
	return len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Playback != new.Playback {
		d.PlaybackChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Target, new.Target) {
		d.RestartRequired = append(d.RestartRequired, "target")
	}
	if !reflect.DeepEqual(old.Idle, new.Idle) {
		d.RestartRequired = append(d.RestartRequired, "idle")
	}
	if !reflect.DeepEqual(old.Inference, new.Inference) {
		d.RestartRequired = append(d.RestartRequired, "inference")
	}

	return d
}
