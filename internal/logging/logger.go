// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package logging provides the structured logger used by padctl.
//
// It wraps log/slog, writing JSON or text records to stderr or a log file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Log levels supported by the logger.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Log formats supported by the logger.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Logger is a slog.Logger that may own the file it writes to.
//
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger

	mu   sync.Mutex
	file *os.File
}

// NewLogger creates a Logger writing records at or above the level in the
// given format.
//
// If path is empty the log is written to stderr, else it is appended to the
// file at path, which is created if necessary.
// Unrecognised levels default to INFO, and unrecognised formats to text.
func NewLogger(path, level, format string) (*Logger, error) {
	var w io.Writer = os.Stderr
	var file *os.File
	if len(path) != 0 {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "create log directory")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, errors.Wrap(err, "open log file")
		}
		file = f
		w = f
	}
	return &Logger{Logger: slog.New(newHandler(w, level, format)), file: file}, nil
}

func newHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.ToLower(format) == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return errors.Wrap(err, "sync log file")
	}
	err := l.file.Close()
	l.file = nil
	return errors.Wrap(err, "close log file")
}

// NopLogger returns a Logger that discards all output.
func NopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}
