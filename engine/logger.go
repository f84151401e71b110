package engine

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with engine-specific helpers so call sites log
// consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{Logger: slog.New(handler)}
}

// WithOwner adds an owner field to the logger.
func (l *Logger) WithOwner(owner string) *Logger {
	return &Logger{Logger: l.Logger.With("owner", owner)}
}

// LogQueue logs a queued mutation.
func (l *Logger) LogQueue(ctx context.Context, owner string, id uint64, pending int) {
	l.DebugContext(ctx, "mutation queued",
		"owner", owner,
		"id", id,
		"pending", pending,
	)
}

// LogFlush logs a flush attempt.
func (l *Logger) LogFlush(ctx context.Context, owner string, applied int, version uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"owner", owner,
			"applied", applied,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"owner", owner,
			"applied", applied,
			"version", version,
			"duration", duration,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, owner string, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"owner", owner,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"owner", owner,
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogLoad logs a snapshot load.
func (l *Logger) LogLoad(ctx context.Context, owner string, version uint64, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index load failed",
			"owner", owner,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index loaded",
			"owner", owner,
			"version", version,
			"size", size,
		)
	}
}

// LogEvict logs a cache eviction.
func (l *Logger) LogEvict(ctx context.Context, owner string, idle time.Duration) {
	l.InfoContext(ctx, "index evicted",
		"owner", owner,
		"idle", idle,
	)
}

// LogCompact logs a compaction.
func (l *Logger) LogCompact(ctx context.Context, owner string, before, after int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "compaction failed",
			"owner", owner,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "compaction completed",
			"owner", owner,
			"nodes_before", before,
			"nodes_after", after,
		)
	}
}
