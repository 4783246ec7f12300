package log

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field aliases so callers do not import zap directly.
type Field = zap.Field

var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Duration = zap.Duration
	Err      = zap.Error
	Any      = zap.Any
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Setup replaces the process logger. Format is "json" or "text",
// level is one of debug/info/warn/error/none.
func Setup(format, level string) error {
	if level == "none" {
		set(zap.NewNop())
		return nil
	}

	var lvl zapcore.Level
	switch level {
	case "", "info":
		lvl = zap.InfoLevel
	case "debug":
		lvl = zap.DebugLevel
	case "warn":
		lvl = zap.WarnLevel
	case "error":
		lvl = zap.ErrorLevel
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true

	if format == "text" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	set(l)

	return nil
}

func set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug logs at debug level. The context is accepted for parity with
// blocking call sites; request-scoped fields travel as explicit fields.
func Debug(ctx context.Context, msg string, fields ...Field) {
	get().Debug(msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...Field) {
	get().Info(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...Field) {
	get().Warn(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...Field) {
	get().Error(msg, fields...)
}
