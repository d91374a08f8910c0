package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig controls how the process-wide zap logger is built
type LoggerConfig struct {
	Debug bool
}

// NewLogger builds a JSON zap logger. Debug enables debug level and caller/stack output.
func NewLogger(cfg *LoggerConfig) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}

	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.Sampling = nil

	if cfg.Debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zc.Development = true
	} else {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zc.DisableStacktrace = true
	}

	return zc.Build()
}
