package deploy

import (
	"context"

	"github.com/rs/zerolog"
)

type logKey struct{}

var nopLogger = zerolog.Nop()

// log returns the logger attached by WithLogger; runs without one stay silent
func log(ctx context.Context) *zerolog.Logger {
	logger, ok := ctx.Value(logKey{}).(*zerolog.Logger)
	if !ok {
		return &nopLogger
	}

	return logger
}

func stepLog(ctx context.Context, step *Step) *zerolog.Logger {
	logger := log(ctx).With().Str("step", step.Name).Logger()
	return &logger
}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, logKey{}, logger)
}
