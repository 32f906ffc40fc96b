// Package logging builds the structured logger shared by the survey tools
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"anchor-survey/internal/config"
	"anchor-survey/internal/version"
)

// ParseLevel maps a configuration level name to a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", level)
	}
}

// New creates a logger from the logging configuration. With a log file
// configured, records are written as JSON to a size-rotated file;
// otherwise they go to stderr as text.
func New(cfg config.LoggingConfig, app string) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if cfg.File == "" {
		l := slog.New(slog.NewTextHandler(os.Stderr, opts)).With(slog.String("app", app))
		return l, nopCloser{}, nil
	}

	w := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	l := slog.New(slog.NewJSONHandler(w, opts)).With(slog.String("app", app))
	l.Info("logging started",
		slog.String("version", version.GetFullVersion()),
		slog.String("GOOS", runtime.GOOS),
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("level", lvl.String()))

	return l, w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
