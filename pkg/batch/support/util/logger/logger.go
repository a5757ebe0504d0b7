// Package logger provides the logging utility for the chunkbatch engine.
// It keeps a small printf-style API on top of a process-wide zap logger whose level
// can be changed at runtime.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is the log level used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is the log level used for general informational messages.
	LevelInfo
	// LevelWarn is the log level used for potential issues or warning messages.
	LevelWarn
	// LevelError is the log level used for error messages.
	LevelError
	// LevelFatal is the log level used for fatal error messages that cause application termination.
	LevelFatal
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format = "console"
	base   = newZapLogger(format, level)
	sugar  = base.Sugar()
)

// newZapLogger builds the zap logger used by the package-level functions.
func newZapLogger(encoding string, lvl zap.AtomicLevel) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if encoding == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl)
	// Skip this package's wrappers so the caller points at the real call site.
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// "TRACE" is treated as DEBUG and "SILENT" suppresses everything below FATAL.
// An unknown value falls back to INFO.
func SetLogLevel(lvl string) {
	switch strings.ToUpper(lvl) {
	case "TRACE", "DEBUG":
		level.SetLevel(zapcore.DebugLevel)
	case "INFO":
		level.SetLevel(zapcore.InfoLevel)
	case "WARN":
		level.SetLevel(zapcore.WarnLevel)
	case "ERROR":
		level.SetLevel(zapcore.ErrorLevel)
	case "FATAL", "SILENT":
		level.SetLevel(zapcore.FatalLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
		Warnf("Unknown log level '%s' specified. Defaulting to INFO level.", lvl)
	}
}

// GetLogLevel returns the current level as one of the package LogLevel constants.
func GetLogLevel() LogLevel {
	switch level.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.InfoLevel:
		return LevelInfo
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel:
		return LevelError
	default:
		return LevelFatal
	}
}

// SetFormat switches the output encoding between "console" (default) and "json".
func SetFormat(encoding string) {
	encoding = strings.ToLower(encoding)
	if encoding != "json" {
		encoding = "console"
	}
	mu.Lock()
	defer mu.Unlock()
	if encoding == format {
		return
	}
	_ = base.Sync()
	format = encoding
	base = newZapLogger(format, level)
	sugar = base.Sugar()
}

// ReplaceForTest swaps the underlying logger and returns a function restoring the previous one.
// Tests use it with zap.NewNop() or an observer core.
func ReplaceForTest(l *zap.Logger) (restore func()) {
	mu.Lock()
	prevBase, prevSugar := base, sugar
	base = l.WithOptions(zap.AddCallerSkip(1))
	sugar = base.Sugar()
	mu.Unlock()
	return func() {
		mu.Lock()
		base, sugar = prevBase, prevSugar
		mu.Unlock()
	}
}

// L returns the structured zap logger for callers that want typed fields.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With returns a sugared logger carrying the given key/value pairs.
func With(args ...interface{}) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar.With(args...)
}

// Sync flushes any buffered log entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	current().Infof(format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

// Fatalf formats and outputs a FATAL level log message,
// then terminates the program by calling os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	l := current()
	_ = l.Sync()
	l.Fatalf(format, v...)
}
