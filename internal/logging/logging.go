// Package logging builds the structured logger shared by the relay and monitor.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/twistin/proxyspace-hydra/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates a logger from configuration. Debug forces the debug level.
// The returned closer releases the log file when output is a file path.
func New(cfg config.LoggingConfig, debug bool) (*slog.Logger, io.Closer) {
	level := ParseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	output, closer := openOutput(cfg)

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler), closer
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer) {
	switch cfg.Output {
	case "stderr":
		return os.Stderr, nopCloser{}
	case "stdout", "":
		return os.Stdout, nopCloser{}
	}

	// File output, rotated by size
	rotator := &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    max(cfg.Rotation.MaxSizeMB, 1),
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAgeDays,
		Compress:   cfg.Rotation.Compress,
	}
	return rotator, rotator
}
