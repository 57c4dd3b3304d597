// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for benchgate.
//
// The logger wraps log/slog and fans records out to stderr (text or
// JSON) and, when a log directory is configured, to a daily JSON log
// file named benchgate_{date}.log. All components receive the logger
// as a *slog.Logger via Slog(), so library packages stay decoupled
// from this package.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Levels
// -----------------------------------------------------------------------------

// Level represents a logging severity level.
type Level = slog.Level

// Logging levels, re-exported so callers don't import log/slog just to
// configure verbosity.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel converts a level name to a Level.
//
// Inputs:
//   - s: One of "debug", "info", "warn", "error" (case-insensitive).
//
// Outputs:
//   - Level: The parsed level.
//   - error: Non-nil when the name is unknown.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures a Logger.
type Config struct {
	// Level is the minimum severity that will be logged.
	Level Level

	// LogDir is the directory for file logs. Empty disables file
	// logging. A leading ~ expands to the user's home directory.
	LogDir string

	// Service is attached to every record as the "service" attribute.
	// Defaults to "benchgate".
	Service string

	// JSON switches the stderr handler from text to JSON. File logs
	// are always JSON.
	JSON bool

	// Quiet suppresses stderr output entirely. File logging, when
	// configured, is unaffected.
	Quiet bool
}

// DefaultConfig returns a Config suitable for CLI use: info-level text
// output on stderr and no log file.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Service: "benchgate",
	}
}

// -----------------------------------------------------------------------------
// Logger
// -----------------------------------------------------------------------------

// Logger is a structured logger writing to stderr and optionally a
// daily log file.
//
// Thread Safety: all methods are safe for concurrent use. Close must
// be called at most once per root logger; derived loggers from With
// share the file handle and must not be closed separately.
type Logger struct {
	slog   *slog.Logger
	config Config

	mu   sync.Mutex
	file *os.File
}

// New creates a Logger from the given configuration.
//
// File logging failures are not fatal: when the log directory cannot
// be created or the file cannot be opened, the logger falls back to
// stderr only and reports the problem there.
//
// Outputs:
//   - *Logger: Never nil.
func New(config Config) *Logger {
	if config.Service == "" {
		config.Service = "benchgate"
	}

	opts := &slog.HandlerOptions{Level: config.Level}
	var handlers []slog.Handler

	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	var file *os.File
	if config.LogDir != "" {
		dir := expandPath(config.LogDir)
		if err := os.MkdirAll(dir, 0750); err != nil {
			fmt.Fprintf(os.Stderr, "logging: create log dir %s: %v\n", dir, err)
		} else {
			name := fmt.Sprintf("%s_%s.log", config.Service, time.Now().Format("2006-01-02"))
			f, err := os.OpenFile(filepath.Join(dir, name),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err != nil {
				fmt.Fprintf(os.Stderr, "logging: open log file: %v\n", err)
			} else {
				file = f
				handlers = append(handlers, slog.NewJSONHandler(f, opts))
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError + 4, // effectively silent
		})
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	return &Logger{
		slog:   slog.New(handler).With("service", config.Service),
		config: config,
		file:   file,
	}
}

// Default returns a logger with DefaultConfig.
func Default() *Logger {
	return New(DefaultConfig())
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a derived Logger carrying additional attributes. The
// parent is not modified; the file handle is shared.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
		file:   l.file,
	}
}

// Slog returns the underlying *slog.Logger for packages that accept
// the standard interface.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close syncs and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Multi-Handler
// -----------------------------------------------------------------------------

// multiHandler fans a record out to every handler, enabling stderr
// and file output with different formats.
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
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
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

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
