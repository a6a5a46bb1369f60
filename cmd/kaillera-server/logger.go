package main

import (
	"log/slog"
	"os"

	"github.com/kaillera-relay/server/internal/logging"
)

// setupLogger builds the process-wide logger from the configured
// format/level, tags every line with the running binary's version so
// logs from a mixed-version deployment can be told apart, and installs
// it as internal/logging's global so every package (room, udpserver,
// registry) logs through the same handler and flood-suppression
// window (internal/logging.New).
func setupLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	l := logging.New(format, lvl, os.Stderr).With("app", "kaillera-server", "version", version)
	logging.Set(l)
	return l
}
