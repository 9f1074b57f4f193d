// Package log15adapter provides a logger that writes to a
// gopkg.in/inconshreveable/log15.v2.Logger log.
package log15adapter

import (
	"context"
	"sort"

	log15 "gopkg.in/inconshreveable/log15.v2"

	"github.com/pglink/pglink"
)

// Log15Logger interface defines the subset of
// gopkg.in/inconshreveable/log15.v2.Logger that this adapter uses.
type Log15Logger interface {
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type Logger struct {
	l Log15Logger
}

func NewLogger(l Log15Logger) *Logger {
	return &Logger{l: l}
}

// NewDiscardLogger returns an adapter over a fresh log15 logger that discards
// all output.
func NewDiscardLogger() *Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level pglink.LogLevel, msg string, data map[string]interface{}) {
	// log15 takes ordered key/value pairs; sort the map keys so a given log
	// line always renders the same way.
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	logCtx := make([]interface{}, 0, len(data)*2)
	for _, k := range keys {
		logCtx = append(logCtx, k, data[k])
	}

	switch level {
	case pglink.LogLevelTrace:
		l.l.Debug(msg, append(logCtx, "PGLINK_LOG_LEVEL", level)...)
	case pglink.LogLevelDebug:
		l.l.Debug(msg, logCtx...)
	case pglink.LogLevelInfo:
		l.l.Info(msg, logCtx...)
	case pglink.LogLevelWarn:
		l.l.Warn(msg, logCtx...)
	case pglink.LogLevelError:
		l.l.Error(msg, logCtx...)
	case pglink.LogLevelNone:
	default:
		l.l.Crit(msg, append(logCtx, "INVALID_PGLINK_LOG_LEVEL", level)...)
	}
}
