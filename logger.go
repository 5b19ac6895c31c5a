package postings

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/postings/internal/checkpoint"
)

// Logger wraps slog.Logger with index-specific context.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithTerm adds a term field to the logger.
func (l *Logger) WithTerm(term string) *Logger {
	return &Logger{
		Logger: l.Logger.With("term", term),
	}
}

// WithTxID adds the page store transaction id.
func (l *Logger) WithTxID(txID uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("tx_id", txID),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogCommit logs a writer commit.
func (l *Logger) LogCommit(ctx context.Context, txID uint64, stats CommitStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"terms", stats.Terms,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "commit completed",
		"tx_id", txID,
		"terms", stats.Terms,
		"added", stats.Added,
		"removed", stats.Removed,
		"promoted", stats.Promoted,
		"demoted", stats.Demoted,
		"pages_allocated", stats.PagesAllocated,
		"pages_freed", stats.PagesFreed,
	)
}

// LogQuery logs a search or conjunction.
func (l *Logger) LogQuery(ctx context.Context, terms, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"terms", terms,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "query completed",
		"terms", terms,
		"results", results,
	)
}

// LogCheckpoint logs a checkpoint write.
func (l *Logger) LogCheckpoint(ctx context.Context, info checkpoint.Info, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "checkpoint saved",
		"name", info.Name,
		"bytes", info.Size,
		"raw_bytes", info.RawSize,
	)
}

// LogRestore logs opening an index from a checkpoint.
func (l *Logger) LogRestore(ctx context.Context, name string, txID uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "index restored",
		"name", name,
		"tx_id", txID,
	)
}
