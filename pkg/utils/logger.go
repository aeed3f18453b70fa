package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger. When debug is true, uses development config
// (human-readable, debug level); otherwise uses production config (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// DebugOnly returns l when debug is set and nil otherwise. Components treat a nil logger
// as disabled, so this keeps per-item debug events out of production logs.
func DebugOnly(l *zap.Logger, debug bool) *zap.Logger {
	if !debug {
		return nil
	}
	return l
}
