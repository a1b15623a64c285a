package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/api"
	"github.com/marmos91/dittovfs/pkg/config"
	"github.com/marmos91/dittovfs/pkg/gc"
	"github.com/marmos91/dittovfs/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the DittoVFS server",
		Long: `Start the HTTP API (mount tree, registry, cache scans) and, when enabled,
the Prometheus metrics endpoint. The server runs until SIGINT or SIGTERM.

Examples:
  # Start with the default config location
  dittovfs serve

  # Override the config from the environment
  DITTOVFS_LOGGING_LEVEL=DEBUG dittovfs serve --config /etc/dittovfs/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	logger.Info("DittoVFS %s starting", Version)
	logger.Info("Log level: %s, format: %s", cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from: %s", getConfigSource())

	// metrics first, so the mount layer gets the prometheus collectors
	metricsResult := config.InitializeMetrics(cfg)

	rt, err := config.NewRuntime(cfg, metricsResult.MountMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize mounts: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("Runtime shutdown error: %v", err)
		}
	}()

	for _, mc := range cfg.Mounts {
		logger.Info("Mount configured: %s -> %s %v", mc.MountPoint, mc.Backend, mc.Arguments)
	}

	collector := gc.NewCollector(gc.Config{
		Enabled:  cfg.Storage.GC.Enabled,
		Dir:      cfg.Storage.TempDir,
		Interval: cfg.Storage.GC.Interval,
		MaxAge:   cfg.Storage.GC.MaxAge,
		DryRun:   cfg.Storage.GC.DryRun,
	})
	collector.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = collector.Stop(stopCtx)
	}()

	runner := server.New(rt.Manager, server.WithStopTimeout(cfg.Server.ShutdownTimeout))

	if cfg.Server.API.IsEnabled() {
		apiServer := api.NewServer(cfg.Server.API, api.Deps{
			View:    rt.View,
			Metrics: metricsResult.MountMetrics,
			Scanner: rt.Scanner,
		})
		if err := runner.AddAdapter(apiServer); err != nil {
			return err
		}
	} else {
		logger.Info("API server disabled")
	}

	if metricsResult.Server != nil {
		if err := runner.AddAdapter(metricsResult.Server); err != nil {
			return err
		}
	} else {
		logger.Info("Metrics collection disabled")
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	err = runner.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("Server stopped gracefully")
		return nil
	}
	return err
}
