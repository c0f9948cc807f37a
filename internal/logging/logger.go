package logging

import (
	"log/slog"
	"os"
)

// Config controls logger behavior.
type Config struct {
	Level     slog.Level
	DevMode   bool
	AddSource bool
}

// New creates a configured slog.Logger.
// DevMode produces human-readable text; production produces JSON.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource || cfg.DevMode,
	}

	var handler slog.Handler
	if cfg.DevMode {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
