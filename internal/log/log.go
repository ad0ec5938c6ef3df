// Package log provides a minimal factory for structured slog loggers.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// New creates a [slog.Logger] writing text records to stdout at the given
// level (one of "debug", "info", "warn", "error", case-insensitive; anything
// else means info). Debug level also annotates records with their source
// location, which helps when chasing event-ordering issues.
func New(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}))
}
