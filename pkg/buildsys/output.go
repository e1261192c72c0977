package buildsys

import (
	"context"

	"github.com/rs/zerolog"
)

type (
	logKey     struct{}
	rootLogKey struct{}
)

var nopLogger = zerolog.Nop()

// Log returns the logger attached to ctx or a no-op logger if there is none.
func Log(ctx context.Context) *zerolog.Logger {
	logger := ctx.Value(logKey{})
	if logger == nil {
		return &nopLogger
	}

	return logger.(*zerolog.Logger)
}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	ctx = context.WithValue(ctx, rootLogKey{}, logger)
	return context.WithValue(ctx, logKey{}, logger)
}

// withTaskLogger derives the task logger from the root logger so nested tasks
// don't stack multiple task fields.
func withTaskLogger(ctx context.Context, task string) context.Context {
	root, ok := ctx.Value(rootLogKey{}).(*zerolog.Logger)
	if !ok {
		return ctx
	}

	logger := root.With().Str("task", task).Logger()
	return context.WithValue(ctx, logKey{}, &logger)
}
