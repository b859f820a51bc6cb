package common

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

var logLevelNames = map[LogLevel]string{
	LogDebug: "debug",
	LogInfo:  "info",
	LogWarn:  "warn",
	LogError: "error",
}

// String returns the lowercase level name
func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return "unknown"
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogDebug:
		return zapcore.DebugLevel
	case LogWarn:
		return zapcore.WarnLevel
	case LogError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel converts a level name from config or flags
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogDebug, nil
	case "", "info":
		return LogInfo, nil
	case "warn", "warning":
		return LogWarn, nil
	case "error":
		return LogError, nil
	}
	return LogInfo, fmt.Errorf("unknown log level %q", s)
}

// SafeLogger provides STDIO-safe logging that only writes to stderr.
// Stdout belongs to whoever speaks a protocol over it.
type SafeLogger struct {
	prefix string
	level  zap.AtomicLevel
	sugar  *zap.SugaredLogger
}

// NewSafeLogger creates a new safe logger with the given prefix
func NewSafeLogger(prefix string) *SafeLogger {
	return newSafeLogger(prefix, zapcore.Lock(os.Stderr))
}

func newSafeLogger(prefix string, out zapcore.WriteSyncer) *SafeLogger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if v := os.Getenv("AGENTS_IDE_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		level.SetLevel(zapcore.DebugLevel)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""
	encCfg.StacktraceKey = ""

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), out, level)
	return &SafeLogger{
		prefix: prefix,
		level:  level,
		sugar:  zap.New(core).Named(prefix).Sugar(),
	}
}

// SetLevel sets the minimum log level
func (l *SafeLogger) SetLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

// Enabled reports whether messages at level would be written
func (l *SafeLogger) Enabled(level LogLevel) bool {
	return l.level.Enabled(level.zapLevel())
}

// With returns a child logger carrying a structured field. The child shares
// the parent's level.
func (l *SafeLogger) With(key string, value interface{}) *SafeLogger {
	return &SafeLogger{
		prefix: l.prefix,
		level:  l.level,
		sugar:  l.sugar.With(key, value),
	}
}

// Debug logs a debug message
func (l *SafeLogger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an info message
func (l *SafeLogger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *SafeLogger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *SafeLogger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered output
func (l *SafeLogger) Sync() {
	_ = l.sugar.Sync()
}

// Global logger instances for convenience
var (
	LSPLogger     = NewSafeLogger("LSP")
	SessionLogger = NewSafeLogger("Session")
	CLILogger     = NewSafeLogger("CLI")
)

// SetGlobalLevel applies level to every package-level logger
func SetGlobalLevel(level LogLevel) {
	for _, l := range []*SafeLogger{LSPLogger, SessionLogger, CLILogger} {
		l.SetLevel(level)
	}
}

const maxLoggedErrorLength = 200

// SanitizeErrorForLogging trims long or multi-line server errors down to their
// first line so stack traces from the server do not flood the log.
func SanitizeErrorForLogging(err interface{}) string {
	if err == nil {
		return ""
	}
	var msg string
	switch e := err.(type) {
	case string:
		msg = e
	case error:
		msg = e.Error()
	default:
		msg = fmt.Sprintf("%v", e)
	}
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > maxLoggedErrorLength {
		msg = msg[:maxLoggedErrorLength] + "..."
	}
	return msg
}
