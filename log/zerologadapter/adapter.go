// Package zerologadapter provides a logger that writes to a github.com/rs/zerolog.
package zerologadapter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pglink/pglink"
)

type Logger struct {
	logger      zerolog.Logger
	withFunc    func(context.Context, zerolog.Context) zerolog.Context
	fromContext bool
	skipModule  bool
}

// option options for configuring the logger when creating a new logger.
type option func(logger *Logger)

// WithContextFunc adds possibility to get request scoped values from the
// ctx.Context before logging lines.
func WithContextFunc(withFunc func(context.Context, zerolog.Context) zerolog.Context) option {
	return func(logger *Logger) {
		logger.withFunc = withFunc
	}
}

// WithoutModule disables adding module:pglink to the default logger context.
func WithoutModule() option {
	return func(logger *Logger) {
		logger.skipModule = true
	}
}

// NewLogger accepts a zerolog.Logger as input and returns a new custom pglink
// logging fascade as output.
func NewLogger(logger zerolog.Logger, options ...option) *Logger {
	l := &Logger{logger: logger}
	l.init(options)
	return l
}

// NewContextLogger creates a logger that extracts the zerolog.Logger from the
// context.Context by using `zerolog.Ctx`. A disabled logger is used when the
// context carries none.
func NewContextLogger(options ...option) *Logger {
	l := &Logger{fromContext: true}
	l.init(options)
	return l
}

func (pl *Logger) init(options []option) {
	for _, opt := range options {
		opt(pl)
	}
	if !pl.fromContext && !pl.skipModule {
		pl.logger = pl.logger.With().Str("module", "pglink").Logger()
	}
}

func (pl *Logger) Log(ctx context.Context, level pglink.LogLevel, msg string, data map[string]interface{}) {
	var zlevel zerolog.Level
	switch level {
	case pglink.LogLevelNone:
		zlevel = zerolog.NoLevel
	case pglink.LogLevelError:
		zlevel = zerolog.ErrorLevel
	case pglink.LogLevelWarn:
		zlevel = zerolog.WarnLevel
	case pglink.LogLevelInfo:
		zlevel = zerolog.InfoLevel
	case pglink.LogLevelDebug:
		zlevel = zerolog.DebugLevel
	default:
		zlevel = zerolog.DebugLevel
	}

	pglog := pl.logger
	if pl.fromContext {
		logger := zerolog.Ctx(ctx)
		pglog = *logger
		if !pl.skipModule {
			pglog = pglog.With().Str("module", "pglink").Logger()
		}
	}

	zctx := pglog.With()
	if pl.withFunc != nil {
		zctx = pl.withFunc(ctx, zctx)
	}

	pglog = zctx.Fields(data).Logger()
	pglog.WithLevel(zlevel).Msg(msg)
}
