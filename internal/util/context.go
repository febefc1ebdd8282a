package util

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

// CTXKeyDisableLogger disables request-scoped logging when set to true.
const CTXKeyDisableLogger contextKey = "disable_logger"

// LogFromContext returns the logger embedded in the given context, falling
// back to the global zerolog logger if none was injected. If logging was
// explicitly disabled for this context, the disabled logger is kept as is.
func LogFromContext(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		if ShouldDisableLogger(ctx) {
			return l
		}
		l = &log.Logger
	}
	return l
}

// ShouldDisableLogger reports whether logging was turned off for this context.
func ShouldDisableLogger(ctx context.Context) bool {
	disabled, ok := ctx.Value(CTXKeyDisableLogger).(bool)
	return ok && disabled
}

// DisableLogger marks the context so LogFromContext returns a no-op logger.
func DisableLogger(ctx context.Context, shouldDisable bool) context.Context {
	return context.WithValue(ctx, CTXKeyDisableLogger, shouldDisable)
}
