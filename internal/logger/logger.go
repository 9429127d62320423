package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process-wide zap logger from config values.
func NewLogger(level, format string) (*zap.Logger, error) {
	var zapCfg zap.Config

	switch format {
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		zapCfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logger.NewLogger: invalid log level %q: %w", level, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)

	log, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger.NewLogger: %w", err)
	}

	return log, nil
}
