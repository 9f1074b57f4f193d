// Package kitlogadapter provides a logger that writes to a github.com/go-kit/log.Logger.
package kitlogadapter

import (
	"context"
	"sort"

	"github.com/go-kit/log"
	kitlevel "github.com/go-kit/log/level"

	"github.com/pglink/pglink"
)

type Logger struct {
	l log.Logger
}

func NewLogger(l log.Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level pglink.LogLevel, msg string, data map[string]interface{}) {
	// Emit one Log call with all keyvals rather than wrapping the logger per
	// field; keys are sorted so a given line always renders the same way.
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	keyvals := make([]interface{}, 0, 2*(len(data)+2))
	keyvals = append(keyvals, "msg", msg)
	for _, k := range keys {
		keyvals = append(keyvals, k, data[k])
	}

	switch level {
	case pglink.LogLevelTrace:
		l.l.Log(append(keyvals, "PGLINK_LOG_LEVEL", level)...)
	case pglink.LogLevelDebug:
		kitlevel.Debug(l.l).Log(keyvals...)
	case pglink.LogLevelInfo:
		kitlevel.Info(l.l).Log(keyvals...)
	case pglink.LogLevelWarn:
		kitlevel.Warn(l.l).Log(keyvals...)
	case pglink.LogLevelError:
		kitlevel.Error(l.l).Log(keyvals...)
	case pglink.LogLevelNone:
	default:
		kitlevel.Error(l.l).Log(append(keyvals, "INVALID_PGLINK_LOG_LEVEL", level)...)
	}
}
