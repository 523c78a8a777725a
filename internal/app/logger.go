package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/studyroom/tutorbook/internal/config"
)

// NewLogger builds the process logger: JSON in production, colored console
// output everywhere else.
func NewLogger(env string) *zap.Logger {
	var zapCfg zap.Config

	if env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.OutputPaths = []string{"stdout"}

	logger, err := zapCfg.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}

	return logger
}
