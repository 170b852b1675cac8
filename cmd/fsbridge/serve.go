package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/config"
	"github.com/marmos91/fsbridge/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker until interrupted",
	Long: `Load the configuration, open the upload cache and accept peers on the
enabled adapters. SIGINT or SIGTERM stops the worker gracefully: open
sessions are closed and their partial uploads removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := configureLogging(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

func configureLogging(cfg *config.Config) error {
	logger.SetLevel(cfg.Logging.Level)
	if err := logger.SetFormat(cfg.Logging.Format); err != nil {
		return fmt.Errorf("logging format: %w", err)
	}
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return fmt.Errorf("logging output: %w", err)
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Info("fsbridge %s (%s) starting", version, commit)

	m := config.InitializeMetrics(cfg)

	deps, err := config.InitializeWorker(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Cache.Close(); err != nil {
			logger.Warn("Failed to close upload cache: %v", err)
		}
	}()

	srv, err := server.New(deps)
	if err != nil {
		return err
	}
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)
	if m.Server != nil {
		srv.SetMetricsServer(m.Server)
	}

	adapters, err := config.CreateAdapters(cfg, m.WorkerMetrics)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
