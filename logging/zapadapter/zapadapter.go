// Package zapadapter wires go.uber.org/zap into fastex.Logger, the
// same encoder conventions the retrieval pack's production services
// use for structured output.
package zapadapter

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hophndev/fastex-go"
)

// Adapter wraps a *zap.Logger to satisfy fastex.Logger.
type Adapter struct {
	l *zap.Logger
}

// Wrap adapts an existing *zap.Logger.
func Wrap(l *zap.Logger) *Adapter {
	return &Adapter{l: l}
}

// New builds a production-style JSON logger at the given level
// ("debug", "info", "warn", "error").
func New(level string) (*Adapter, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, &fastex.ConfigError{Field: "log_level", Value: level, Reason: err.Error()}
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      false,
		Encoding:         "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "message",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
		},
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Adapter{l: l}, nil
}

func toFields(kv []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	return fields
}

func (a *Adapter) Debug(msg string, kv ...interface{}) { a.l.Debug(msg, toFields(kv)...) }
func (a *Adapter) Info(msg string, kv ...interface{})  { a.l.Info(msg, toFields(kv)...) }
func (a *Adapter) Warn(msg string, kv ...interface{})  { a.l.Warn(msg, toFields(kv)...) }
func (a *Adapter) Error(msg string, kv ...interface{}) { a.l.Error(msg, toFields(kv)...) }

// Sync flushes buffered log entries; call before process exit.
func (a *Adapter) Sync() error {
	return a.l.Sync()
}
