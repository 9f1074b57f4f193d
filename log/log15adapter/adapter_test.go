package log15adapter_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	log15 "gopkg.in/inconshreveable/log15.v2"

	"github.com/pglink/pglink"
	"github.com/pglink/pglink/log/log15adapter"
)

func newTestLogger(buf *bytes.Buffer) *log15adapter.Logger {
	l := log15.New()
	l.SetHandler(log15.StreamHandler(buf, log15.LogfmtFormat()))
	return log15adapter.NewLogger(l)
}

func TestLoggerSortsContextKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Log(context.Background(), pglink.LogLevelInfo, "hello", map[string]interface{}{"b": 2, "a": 1})

	got := buf.String()
	if !strings.Contains(got, "lvl=info") {
		t.Errorf("missing level: %q", got)
	}
	if !strings.Contains(got, "msg=hello a=1 b=2") {
		t.Errorf("context keys not sorted: %q", got)
	}
}

func TestLoggerLevelNone(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Log(context.Background(), pglink.LogLevelNone, "silent", nil)

	if buf.Len() != 0 {
		t.Errorf("LogLevelNone must not log, got %q", buf.String())
	}
}

func TestLoggerInvalidLevelGoesToCrit(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Log(context.Background(), pglink.LogLevel(42), "odd", nil)

	got := buf.String()
	if !strings.Contains(got, "lvl=crit") {
		t.Errorf("invalid levels must log at crit: %q", got)
	}
	if !strings.Contains(got, "INVALID_PGLINK_LOG_LEVEL") {
		t.Errorf("invalid level marker missing: %q", got)
	}
}

func TestNewDiscardLogger(t *testing.T) {
	logger := log15adapter.NewDiscardLogger()
	// Must not panic or write anywhere.
	logger.Log(context.Background(), pglink.LogLevelError, "dropped", map[string]interface{}{"k": "v"})
}
