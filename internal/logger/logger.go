// Package logger provides the structured slog logger used across the
// application. Logs are written in JSON format to a size-rotated file under
// the data directory, and mirrored to stderr at debug level.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls log file rotation.
type Options struct {
	// MaxSizeMB is the maximum size of the log file before rotation, in megabytes.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to retain.
	MaxBackups int
	// MaxAgeDays is the maximum age of a rotated file before deletion, in days.
	MaxAgeDays int
	// Stderr additionally mirrors log output to stderr when true.
	Stderr bool
}

// New creates a JSON slog.Logger writing to <logDir>/system.log with
// size-based rotation. The directory is created if it does not exist.
func New(logDir string, level slog.Level, opts Options) (*slog.Logger, error) {
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, err
	}

	var w io.Writer = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "system.log"),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	if opts.Stderr {
		w = io.MultiWriter(w, os.Stderr)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}
