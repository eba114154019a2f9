// Package logging builds the zap loggers used across cortexmap.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger for mode "release" and a colored
// development logger otherwise. Verbose enables Debug output in either
// mode.
func New(mode string, verbose bool) (*zap.Logger, error) {
	var config zap.Config

	if mode == "release" {
		config = zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	}

	return config.Build()
}

// Sync flushes a logger, ignoring the error some terminals report for
// stderr.
func Sync(logger *zap.Logger) {
	if logger != nil {
		_ = logger.Sync()
	}
}
