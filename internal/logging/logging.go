// Package logging builds the zap loggers used by the binaries. Library
// packages take a *zap.Logger through options and default to a no-op.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the configuration for a logger.
type Config struct {
	Service     string // "pst-issuer" or "pstctl"
	Level       string // debug, info, warn, error; empty means info
	Development bool   // console output with caller and stack traces
}

// New creates a logger from cfg. Production loggers write JSON.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var zapConfig zap.Config
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	if cfg.Service != "" {
		logger = logger.With(zap.String("service", cfg.Service))
	}
	return logger, nil
}

// WithIssuer scopes a logger to one issuer origin.
func WithIssuer(l *zap.Logger, origin string) *zap.Logger {
	if origin == "" {
		return l
	}
	return l.With(zap.String("issuer", origin))
}
