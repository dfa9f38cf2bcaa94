package seisgo

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with seisgo-specific context.
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

// WithShot adds a shot (source index) field to the logger.
func (l *Logger) WithShot(shot int) *Logger {
	return &Logger{
		Logger: l.Logger.With("shot", shot),
	}
}

// WithMode adds the modeling mode field to the logger.
func (l *Logger) WithMode(mode string) *Logger {
	return &Logger{
		Logger: l.Logger.With("mode", mode),
	}
}

// LogShot logs the outcome of a single-shot evaluation.
func (l *Logger) LogShot(ctx context.Context, shot int, misfit float64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "shot evaluation failed",
			"shot", shot,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "shot evaluated",
			"shot", shot,
			"misfit", misfit,
			"duration", duration,
		)
	}
}

// LogEvaluate logs a complete objective evaluation over a batch of shots.
func (l *Logger) LogEvaluate(ctx context.Context, shots int, misfit float64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "evaluation failed",
			"shots", shots,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "evaluation completed",
			"shots", shots,
			"misfit", misfit,
			"duration", duration,
		)
	}
}

// LogIteration logs one optimizer iteration.
func (l *Logger) LogIteration(ctx context.Context, iter int, misfit, gradNorm, step float64) {
	l.InfoContext(ctx, "iteration completed",
		"iteration", iter,
		"misfit", misfit,
		"grad_norm", gradNorm,
		"step", step,
	)
}
