package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/api"
	"github.com/ricirt/feedrelay/internal/domain"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline and the operator API",
	Long: `Run the polling and forwarding pipeline with the HTTP operator API.

The server will:
  - Load the runtime file and watch it for changes
  - Open the durable store (file, sqlite, postgres or memory)
  - Start monitoring right away unless AUTO_START=false
  - Serve /api/v1, /health and /metrics on HTTP_PORT

It runs until interrupted (Ctrl+C) or receives SIGTERM. In-flight cycles
finish before the store is closed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	go func() {
		if err := a.runtime.Watch(ctx); err != nil {
			logger.Error("runtime config watcher stopped", zap.Error(err))
		}
	}()

	if cfg.AutoStart {
		if err := a.service.Start(ctx); err != nil {
			return err
		}
	}

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(a.service, a.registry, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.Error("server error", zap.Error(err))
	}

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop scheduling new cycles.
	if err := a.scheduler.Stop(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		logger.Error("failed to stop monitoring", zap.Error(err))
	}

	// 3. Let in-flight cycles finish so their results are persisted.
	a.scheduler.Wait()

	logger.Info("server stopped cleanly")
	return nil
}
