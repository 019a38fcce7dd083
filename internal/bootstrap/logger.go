package bootstrap

import (
	"tradecore/internal/core"
	"tradecore/pkg/logging"
)

// InitLogger builds the process-wide structured logger from cfg.System.LogLevel.
func InitLogger(cfg *Config) core.ILogger {
	logger, err := logging.NewLoggerFromString(cfg.System.LogLevel, nil)
	if err != nil {
		// LogLevel is schema-validated before this runs; a build failure here
		// means the zap core itself could not be constructed.
		panic(err)
	}
	logging.SetGlobalLogger(logger)
	return logger
}
