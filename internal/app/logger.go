package app

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"laundry-dispatch/internal/config"
	"laundry-dispatch/internal/logx"
)

// NewLogger builds the process logger: slog JSON by default, zap when LOG_BACKEND=zap.
func NewLogger(cfg *config.Config) (logx.Logger, error) {
	if cfg.Log.Backend != "zap" {
		return logx.NewJSON(os.Stdout, cfg.Log.Level), nil
	}

	zcfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("zap logger: %w", err)
	}
	return logx.NewZapAdapter(l), nil
}
