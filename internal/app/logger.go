package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the process logger: JSON when LOG_FORMAT=json, text
// otherwise, filtered at LOG_LEVEL. Every record carries the environment.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	env := "development"
	format := ""
	if cfg != nil {
		opts.Level = parseLevel(cfg.LogLevel)
		opts.AddSource = !cfg.IsProduction()
		if cfg.AppEnv != "" {
			env = cfg.AppEnv
		}
		format = cfg.LogFormat
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "portal"), slog.String("env", env))
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
