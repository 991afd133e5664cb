package layerpress

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with layerpress-specific context.
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

// WithLayer adds a layer name field to the logger.
func (l *Logger) WithLayer(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("layer", name),
	}
}

// LogCapture logs a calibration capture phase.
func (l *Logger) LogCapture(ctx context.Context, layer string, batches, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "calibration capture failed",
			"layer", layer,
			"batches", batches,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "calibration capture completed",
			"layer", layer,
			"batches", batches,
			"rows", rows,
		)
	}
}

// LogSolve logs the curvature inverse solve.
func (l *Logger) LogSolve(ctx context.Context, layer string, damping float64, deadCols int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "curvature solve failed",
			"layer", layer,
			"damping", damping,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "curvature solve completed",
			"layer", layer,
			"damping", damping,
			"dead_columns", deadCols,
		)
	}
}

// LogCompress logs the column-wise compression pass.
func (l *Logger) LogCompress(ctx context.Context, layer string, reconstructionErr float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "compression failed",
			"layer", layer,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "compression completed",
			"layer", layer,
			"reconstruction_error", reconstructionErr,
		)
	}
}

// LogCommit logs the weight write-back.
func (l *Logger) LogCommit(ctx context.Context, layer string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"layer", layer,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "layer committed",
			"layer", layer,
		)
	}
}

// LogSkip logs a layer skipped in best-effort mode.
func (l *Logger) LogSkip(ctx context.Context, layer string, err error) {
	l.WarnContext(ctx, "layer skipped, weights unmodified",
		"layer", layer,
		"error", err,
	)
}

// LogArtifact logs an artifact store write.
func (l *Logger) LogArtifact(ctx context.Context, layer, name string, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "artifact write failed",
			"layer", layer,
			"name", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "artifact written",
			"layer", layer,
			"name", name,
			"bytes", size,
		)
	}
}
