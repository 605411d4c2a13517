package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleHandlerPlainLine(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newConsoleHandler(&buf, nil, false))

	l.Info("upload complete", KeyUserID, "u1", KeySize, 42)

	line := buf.String()
	assert.Contains(t, line, "[INFO] upload complete")
	assert.Contains(t, line, "user_id=u1")
	assert.Contains(t, line, "size=42")
	assert.NotContains(t, line, "\033[", "plain output carries no escape codes")
	require.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}

func TestConsoleHandlerLevelThreshold(t *testing.T) {
	var buf bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	l := slog.New(newConsoleHandler(&buf, opts, false))

	l.Info("hidden")
	l.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] visible")
}

func TestConsoleHandlerGroupQualifiesKeys(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newConsoleHandler(&buf, nil, false))

	l.WithGroup("request").With("id", "abc").Info("handled", "status", 200)

	line := buf.String()
	assert.Contains(t, line, "request.id=abc")
	assert.Contains(t, line, "request.status=200")
}

func TestConsoleHandlerErrorFieldColored(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newConsoleHandler(&buf, nil, true))

	l.Error("sweep failed", Err(errors.New("disk full")))

	line := buf.String()
	assert.Contains(t, line, colorRed+"disk full"+colorReset)
	assert.Contains(t, line, colorCyan+"error"+colorReset+"=")
}

func TestConsoleHandlerFloatPrecision(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newConsoleHandler(&buf, nil, false))

	l.Info("timed", KeyDurationMs, 12.3456)

	assert.Contains(t, buf.String(), "duration_ms=12.346")
}
