package rodb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with rodb-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithResource adds a resource field to the logger.
func (l *Logger) WithResource(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("resource", name),
	}
}

// WithDir adds the database directory to the logger.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dir", dir),
	}
}

// LogOpen logs opening a database.
func (l *Logger) LogOpen(ctx context.Context, resources int, readOnly bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"resources", resources,
			"read_only", readOnly,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "database opened",
			"resources", resources,
			"read_only", readOnly,
		)
	}
}

// LogClose logs closing a database.
func (l *Logger) LogClose(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "database closed")
	}
}

// LogSave logs storing an object. The resource comes from WithResource.
func (l *Logger) LogSave(ctx context.Context, id uint64, created bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "save completed",
			"id", id,
			"created", created,
		)
	}
}

// LogLoad logs a failed object load. Successful loads are not logged.
func (l *Logger) LogLoad(ctx context.Context, id uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"id", id,
			"error", err,
		)
	}
}

// LogFlush logs writing indexes and the manifest.
func (l *Logger) LogFlush(ctx context.Context, indexes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"indexes", indexes,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"indexes", indexes,
		)
	}
}

// LogDrain logs applying the deferred updates of a newly stored object.
func (l *Logger) LogDrain(ctx context.Context, id uint64, applied int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "deferred update failed",
			"id", id,
			"applied", applied,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "deferred updates applied",
			"id", id,
			"applied", applied,
		)
	}
}
