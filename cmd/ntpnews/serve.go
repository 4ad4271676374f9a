package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t-webber/ntpnews"
	"github.com/t-webber/ntpnews/config"
	"github.com/t-webber/ntpnews/internal/logging"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the news page server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the news page server",
	Long: `Start the ntpnews server.

The server will:
  - Load configuration from the specified YAML or TOML file
  - Connect to the configured news backend
  - Serve news state, actions and live updates on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  ntpnews serve -c config.yaml
  ntpnews serve --config /etc/ntpnews/config.toml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("backend", cfg.Backend.Type),
		zap.String("storage", cfg.Storage.Path),
	)
	logger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.Duration("peek_cache_max_age", cfg.PeekCacheMaxAge.Duration()),
	)

	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build page options: %w", err)
	}

	page, err := ntpnews.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create news page: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- page.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				zap.Duration("timeout", shutdownTimeout),
				zap.String("action", "forcing exit"),
			)
			return nil
		}
	}
}
