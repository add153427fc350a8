package observability

import (
	"strings"

	"github.com/kronusitsolutions/kronusmed/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the application logger. Development environments get
// console output, everything else structured JSON.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	obs := cfg.Observability

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(strings.TrimSpace(obs.LogLevel))); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if strings.EqualFold(obs.Environment, "development") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	log, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return log.With(
		zap.String("service", obs.ServiceName),
		zap.String("env", obs.Environment),
	), nil
}
