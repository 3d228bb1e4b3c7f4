// Package logging constructs the single *zap.Logger shared by server,
// client and reconciler, grounded on edirooss-zmux-server's use of zap
// across every stateful component (datastore, objectstore, processmgr).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production-profile zap logger at the given level name
// ("debug", "info", "warn", "error"; defaults to "info" on parse failure).
func New(level string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// zap's production config is effectively infallible to build; fall
		// back to Nop rather than panic a CLI tool over a logger.
		return zap.NewNop()
	}
	return logger
}
