package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a zap logger for long-running services. When debug is true, uses
// development config (human-readable, debug level); otherwise uses production config
// (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewCLILogger returns a zap logger for interactive commands, whose stdout carries
// results. Output goes to stderr as plain console lines at warn level, or at debug
// level with the development config when debug is true.
func NewCLILogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.CallerKey = ""
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	return cfg.Build()
}
