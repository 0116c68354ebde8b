package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/search"
	"github.com/hyperjump/kioku/internal/server"
	"github.com/hyperjump/kioku/internal/watcher"
	kerr "github.com/hyperjump/kioku/pkg/errors"
	"github.com/hyperjump/kioku/pkg/utils"
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API",
		Long:  "Serve the query, record and status API. Changes to query.top_k and query.similarity_threshold in the config file apply without a restart.",
		RunE:  runServer,
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, resolvedConfigPath, err := loadConfigFromFlags(cmd)
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return kerr.Wrap(err, kerr.CodeServerStartFailure, "failed to initialize components")
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	if cfg.Cache.WarmOnStart {
		if err := components.Cache.Warm(ctx); err != nil {
			logger.Warn("warm-up failed; indexes will hydrate on first use", zap.Error(err))
		}
	}
	go components.Cache.RunReconciler(ctx, cfg.Cache.ReconcileInterval)

	watchOpts := []watcher.WatcherOption{}
	if cfg.Debug {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher([]string{resolvedConfigPath}, func(path string) {
		reloadPolicy(path, components.Engine, logger)
	}, watchOpts...)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
	}
	defer watchSvc.Stop()

	srv := server.NewServer(components.Engine, components.Cache, components.Store, &cfg.Server, logger, components.Metrics)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return kerr.Wrap(err, kerr.CodeServerStartFailure, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// reloadPolicy re-reads the config file and applies the query policy to engine. Invalid files
// are logged and leave the running policy untouched.
func reloadPolicy(path string, engine *search.Engine, logger *zap.Logger) {
	cfg, err := config.Load(path)
	if err != nil {
		logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := engine.SetPolicy(cfg.Query.Threshold(), cfg.Query.TopK); err != nil {
		logger.Warn("config reload rejected", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("query policy reloaded",
		zap.Float64("similarity_threshold", cfg.Query.Threshold()),
		zap.Int("top_k", cfg.Query.TopK),
	)
}
