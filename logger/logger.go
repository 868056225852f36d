// Package logger builds the process logger
package logger

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger at the given level ("debug",
// "info", "warn", "error")
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Watermill adapts a zap logger to watermill's logging interface
type Watermill struct {
	log *zap.Logger
}

var _ watermill.LoggerAdapter = (*Watermill)(nil)

// NewWatermill wraps log for use by watermill publishers and routers
func NewWatermill(log *zap.Logger) *Watermill {
	return &Watermill{log: log.WithOptions(zap.AddCallerSkip(1))}
}

func (w *Watermill) Error(msg string, err error, fields watermill.LogFields) {
	w.log.Error(msg, append(toZap(fields), zap.Error(err))...)
}

func (w *Watermill) Info(msg string, fields watermill.LogFields) {
	w.log.Info(msg, toZap(fields)...)
}

func (w *Watermill) Debug(msg string, fields watermill.LogFields) {
	w.log.Debug(msg, toZap(fields)...)
}

// Trace is logged at debug level; zap has no trace level
func (w *Watermill) Trace(msg string, fields watermill.LogFields) {
	w.log.Debug(msg, toZap(fields)...)
}

func (w *Watermill) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &Watermill{log: w.log.With(toZap(fields)...)}
}

func toZap(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
