// Package logrusadapter provides a logger that writes to a github.com/sirupsen/logrus.Logger
// log.
package logrusadapter

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pglink/pglink"
)

type Logger struct {
	l *logrus.Logger
}

func NewLogger(l *logrus.Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level pglink.LogLevel, msg string, data map[string]interface{}) {
	fields := make(logrus.Fields, len(data))
	var cause error
	for k, v := range data {
		if k == "err" {
			if err, ok := v.(error); ok {
				cause = err
				continue
			}
		}
		fields[k] = v
	}

	entry := logrus.NewEntry(l.l).WithFields(fields)
	if cause != nil {
		entry = entry.WithError(cause)
	}

	switch level {
	case pglink.LogLevelTrace:
		entry.Trace(msg)
	case pglink.LogLevelDebug:
		entry.Debug(msg)
	case pglink.LogLevelInfo:
		entry.Info(msg)
	case pglink.LogLevelWarn:
		entry.Warn(msg)
	case pglink.LogLevelError:
		entry.Error(msg)
	case pglink.LogLevelNone:
	default:
		entry.WithField("INVALID_PGLINK_LOG_LEVEL", level).Error(msg)
	}
}
