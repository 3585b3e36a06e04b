package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ruralpay/ledger/internal/config"
)

// New builds a JSON logger. An empty level means debug in development and
// info otherwise.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := resolveLevel(cfg)
	if err != nil {
		return nil, err
	}

	base := zap.NewProductionConfig()
	if cfg.Development {
		base = zap.NewDevelopmentConfig()
	}
	base.Encoding = "json"
	base.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	base.EncoderConfig.TimeKey = "timestamp"
	base.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	base.Level = level
	base.DisableStacktrace = true

	logger, err := base.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.With(zap.String("service", "ledger")), nil
}

func resolveLevel(cfg config.LogConfig) (zap.AtomicLevel, error) {
	if strings.TrimSpace(cfg.Level) != "" {
		var parsed zapcore.Level
		if err := parsed.Set(cfg.Level); err != nil {
			return zap.AtomicLevel{}, fmt.Errorf("invalid level %q: %w", cfg.Level, err)
		}
		return zap.NewAtomicLevelAt(parsed), nil
	}
	if cfg.Development {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel), nil
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
}
