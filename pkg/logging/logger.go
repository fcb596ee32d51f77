// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for shake commands.
//
// Logs go to stderr by default so stdout stays free for reports and
// shaken graphs. A log directory adds a per-day file alongside it:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.shake/logs",
//	    Service: "shake",
//	})
//	defer logger.Close()
//
// Logger is safe for concurrent use.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultService is the service attribute used when Config.Service is empty.
const DefaultService = "shake"

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity levels, ordered Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for recoverable problems.
	LevelWarn

	// LevelError is for failed operations.
	LevelError
)

// ErrUnknownLevel indicates a level name ParseLevel does not recognize.
var ErrUnknownLevel = errors.New("unknown log level")

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a flag value such as "debug" or "WARN" to a Level.
//
// Inputs:
//
//	s - Level name. Case and surrounding space are ignored. "warning" is
//	    accepted for LevelWarn.
//
// Outputs:
//
//	Level - The level. LevelInfo on error.
//	error - ErrUnknownLevel for unrecognized names.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
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

// =============================================================================
// Configuration
// =============================================================================

// Config configures a Logger.
type Config struct {
	// Level is the minimum level written. Default LevelDebug (zero value).
	Level Level

	// LogDir enables file logging when non-empty. "~" is expanded. The
	// directory is created if needed; failure disables file logging only.
	LogDir string

	// Service is added to every record. Default DefaultService.
	Service string

	// JSON selects the JSON handler for the console output. Files are
	// always JSON.
	JSON bool

	// Quiet suppresses console output. When no file is open either,
	// records are discarded.
	Quiet bool

	// Writer replaces stderr as the console destination.
	Writer io.Writer
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps slog with an optional log file.
type Logger struct {
	slog   *slog.Logger
	config Config
	file   *os.File
	mu     *sync.Mutex
}

// New creates a Logger from config.
//
// Description:
//
//	Builds one handler per destination (console, file) and fans records
//	out to all of them. The file is named {service}_{YYYY-MM-DD}.log and
//	opened for append.
//
// Inputs:
//
//	config - Logger configuration. Zero values are usable.
//
// Outputs:
//
//	*Logger - Never nil. Call Close to release the file.
//
// Thread Safety: The returned Logger is safe for concurrent use.
func New(config Config) *Logger {
	if config.Service == "" {
		config.Service = DefaultService
	}
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handlers []slog.Handler
	if !config.Quiet {
		w := config.Writer
		if w == nil {
			w = os.Stderr
		}
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(w, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(w, opts))
		}
	}

	l := &Logger{config: config, mu: &sync.Mutex{}}
	if config.LogDir != "" {
		if f, err := openLogFile(config.LogDir, config.Service, time.Now()); err == nil {
			l.file = f
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.DiscardHandler
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	l.slog = slog.New(handler).With(slog.String("service", config.Service))
	return l
}

// Default returns an Info-level stderr logger for DefaultService.
func Default() *Logger {
	return New(Config{Level: LevelInfo})
}

func openLogFile(dir, service string, now time.Time) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.log", service, now.Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Debug logs at LevelDebug.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at LevelInfo.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at LevelWarn.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at LevelError.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a Logger carrying args on every record. The file handle is
// shared; closing either logger closes it for both.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
		file:   l.file,
		mu:     l.mu,
	}
}

// Slog returns the underlying slog.Logger for packages that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// FilePath returns the path of the open log file, or "" without one.
func (l *Logger) FilePath() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close syncs and closes the log file. Safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// =============================================================================
// Multi-Handler
// =============================================================================

// multiHandler fans records out to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath replaces a leading "~" with the home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
