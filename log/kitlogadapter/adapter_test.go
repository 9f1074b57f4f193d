package kitlogadapter_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-kit/log"

	"github.com/pglink/pglink"
	"github.com/pglink/pglink/log/kitlogadapter"
)

func TestLoggerEmitsSingleLine(t *testing.T) {
	var buf bytes.Buffer
	logger := kitlogadapter.NewLogger(log.NewLogfmtLogger(&buf))

	logger.Log(context.Background(), pglink.LogLevelInfo, "hello", map[string]interface{}{"b": 2, "a": 1})

	const want = "level=info msg=hello a=1 b=2\n"
	if got := buf.String(); got != want {
		t.Errorf("%q != %q", got, want)
	}
}

func TestLoggerTraceBypassesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := kitlogadapter.NewLogger(log.NewLogfmtLogger(&buf))

	logger.Log(context.Background(), pglink.LogLevelTrace, "wire", nil)

	const want = "msg=wire PGLINK_LOG_LEVEL=trace\n"
	if got := buf.String(); got != want {
		t.Errorf("%q != %q", got, want)
	}
}

func TestLoggerLevelNone(t *testing.T) {
	var buf bytes.Buffer
	logger := kitlogadapter.NewLogger(log.NewLogfmtLogger(&buf))

	logger.Log(context.Background(), pglink.LogLevelNone, "silent", nil)

	if buf.Len() != 0 {
		t.Errorf("LogLevelNone must not log, got %q", buf.String())
	}
}
