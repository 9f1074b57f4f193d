// Package zapadapter provides a logger that writes to a go.uber.org/zap.Logger.
package zapadapter

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pglink/pglink"
)

type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (pl *Logger) Log(ctx context.Context, level pglink.LogLevel, msg string, data map[string]interface{}) {
	fields := make([]zapcore.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}

	switch level {
	case pglink.LogLevelTrace:
		pl.logger.Debug(msg, append(fields, zap.Stringer("PGLINK_LOG_LEVEL", level))...)
	case pglink.LogLevelDebug:
		pl.logger.Debug(msg, fields...)
	case pglink.LogLevelInfo:
		pl.logger.Info(msg, fields...)
	case pglink.LogLevelWarn:
		pl.logger.Warn(msg, fields...)
	case pglink.LogLevelError:
		pl.logger.Error(msg, fields...)
	default:
		pl.logger.Error(msg, append(fields, zap.Stringer("INVALID_PGLINK_LOG_LEVEL", level))...)
	}
}
