// Package main provides the entry point for the pathwatch command.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/pathwatch/pathwatch/internal/config"
	"github.com/pathwatch/pathwatch/internal/di"
	"github.com/pathwatch/pathwatch/internal/di/providers"
	"github.com/pathwatch/pathwatch/internal/logger"
	"github.com/pathwatch/pathwatch/internal/stats"
)

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap the pipeline and register the configured watches
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start pathwatch: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)
	notifier := do.MustInvoke[*providers.NotifierHandle](injector)

	notifier.Start()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	cfg := do.MustInvoke[*config.Config](injector)
	counter := do.MustInvoke[*stats.Counter](injector)

	// Shutdown all services in reverse order; the notifier drains its
	// loop and closes the stream here.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	if cfg.Stats.Enabled {
		fmt.Fprintln(os.Stdout, counter.String())
		if cfg.Stats.DumpPath != "" {
			if err := counter.Dump(cfg.Stats.DumpPath); err != nil {
				log.Error("Failed to dump stats", "error", err)
			}
		}
	}
}
