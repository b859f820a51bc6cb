package common

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(prefix string) (*SafeLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return newSafeLogger(prefix, zapcore.AddSync(buf)), buf
}

func TestSafeLoggerWritesPrefixAndLevel(t *testing.T) {
	l, buf := newBufferLogger("TEST")
	l.Info("hello %s", "world")

	out := buf.String()
	assert.Contains(t, out, "TEST")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "hello world")
}

func TestSafeLoggerLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger("TEST")
	l.SetLevel(LogWarn)

	l.Debug("dropped debug")
	l.Info("dropped info")
	l.Warn("kept warn")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept warn")
	assert.False(t, l.Enabled(LogInfo))
	assert.True(t, l.Enabled(LogError))
}

func TestSafeLoggerWithSharesLevel(t *testing.T) {
	l, buf := newBufferLogger("TEST")
	child := l.With("session", "abc")

	l.SetLevel(LogError)
	child.Warn("suppressed")
	child.Error("boom")

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "abc")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogDebug, false},
		{"INFO", LogInfo, false},
		{"", LogInfo, false},
		{"warning", LogWarn, false},
		{"error", LogError, false},
		{"loud", LogInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeErrorForLogging(t *testing.T) {
	assert.Equal(t, "", SanitizeErrorForLogging(nil))

	long := strings.Repeat("x", 250)
	assert.True(t, strings.HasSuffix(SanitizeErrorForLogging(long), "..."))

	trace := "TypeError: bad thing\n  at a\n  at b"
	assert.Equal(t, "TypeError: bad thing", SanitizeErrorForLogging(trace))
}
