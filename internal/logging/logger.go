// Package logging provides structured logging for the judge service.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// Init builds the process-wide logger. Production mode emits JSON;
// anything else gets the colored development encoder. Safe to call more
// than once.
func Init() {
	once.Do(func() {
		var cfg zap.Config
		if os.Getenv("ENVIRONMENT") == "production" {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		var err error
		logger, err = cfg.Build(zap.AddCallerSkip(0))
		if err != nil {
			logger = zap.NewNop()
		}
	})
}

// L returns the shared logger, initializing it on first use.
func L() *zap.Logger {
	if logger == nil {
		Init()
	}
	return logger
}

// S returns the shared sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
