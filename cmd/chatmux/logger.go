package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// newLogger writes colored text to stderr, or JSON to logFile when set.
// The returned closer releases the log file.
func newLogger(level, logFile string, noColor bool) (*slog.Logger, io.Closer, error) {
	lvl := parseLogLevel(level)

	if logFile == "" {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:   lvl,
			NoColor: noColor || !term.IsTerminal(int(os.Stderr.Fd())),
		})), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl})), file, nil
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
