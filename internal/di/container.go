// Package di provides dependency injection configuration for pathwatch.
package di

import (
	"github.com/samber/do/v2"

	"github.com/pathwatch/pathwatch/internal/di/providers"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Watch pipeline
	do.Provide(injector, providers.ProvideStream)
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideStats)
	do.Provide(injector, providers.ProvideNotifier)

	return injector
}

// Bootstrap eagerly initializes the notifier, which pulls in the whole
// pipeline, and registers the configured watches.
func Bootstrap(injector do.Injector) error {
	if _, err := do.Invoke[*providers.NotifierHandle](injector); err != nil {
		return err
	}
	return providers.RegisterWatches(injector)
}
