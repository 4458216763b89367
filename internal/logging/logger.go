// Package logging is the process-wide structured logger. Reporters and the
// probe CLI both log JSON lines so fleet log shipping can parse either.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base *zap.SugaredLogger
)

// Init builds the global logger. Production uses zap's sampled production
// config; every other environment logs at debug with caller info. level, when
// set, overrides the environment's default level.
func Init(env string, level string) error {
	var cfg zap.Config
	if strings.EqualFold(env, "production") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Encoding = "json"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"

	if level != "" {
		lvl, err := zapcore.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	base = logger.Sugar()
	mu.Unlock()
	return nil
}

func get() *zap.SugaredLogger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		return l
	}

	// Used before Init, e.g. from tests.
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		logger, _ := zap.NewProduction()
		base = logger.Sugar()
	}
	return base
}

// Close flushes buffered entries.
func Close() error {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		return nil
	}
	return base.Sync()
}

func Info(msg string, kv ...any)  { get().Infow(msg, kv...) }
func Debug(msg string, kv ...any) { get().Debugw(msg, kv...) }
func Warn(msg string, kv ...any)  { get().Warnw(msg, kv...) }
func Error(msg string, kv ...any) { get().Errorw(msg, kv...) }

// Fatal logs and exits with status 1.
func Fatal(msg string, kv ...any) {
	get().Fatalw(msg, kv...)
	os.Exit(1)
}

// Named returns a child logger for one component, e.g. "probe" or "watcher".
// The child is bound to the logger current at call time.
func Named(component string) *zap.SugaredLogger {
	return get().Named(component)
}
