// Package logging builds the zap loggers used across the watcher and lets
// selected entries be mirrored to an external sink such as the Telegram log
// channel.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns the process-wide root logger. Components derive their own
// loggers from it with Named. Development mode switches to the console
// encoder with colored levels.
func New(development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// WithMirror returns a copy of logger whose entries at or above min are also
// handed to fn as "LEVEL: message" lines. fn runs on the logging call path,
// so anything slow, like a network send, belongs behind its own goroutine.
// fn must not log through the returned logger.
func WithMirror(logger *zap.Logger, min zapcore.Level, fn func(line string)) *zap.Logger {
	return logger.WithOptions(zap.Hooks(func(entry zapcore.Entry) error {
		if entry.Level >= min {
			fn(fmt.Sprintf("%s: %s", entry.Level.CapitalString(), entry.Message))
		}
		return nil
	}))
}
