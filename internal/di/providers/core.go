// Package providers contains the DI provider functions for pathwatch.
package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/pathwatch/pathwatch/internal/config"
	"github.com/pathwatch/pathwatch/internal/logger"
)

// ProvideConfig loads the application configuration from flags,
// environment and config file.
func ProvideConfig(do.Injector) (*config.Config, error) {
	return config.LoadConfig(os.Args[1:])
}

// ProvideLogger creates the application logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return logger.New(logger.Config{
		Writer: os.Stderr,
		Format: cfg.Logger.Format,
		Level:  logger.ParseLevel(cfg.Logger.Level),
	}), nil
}
