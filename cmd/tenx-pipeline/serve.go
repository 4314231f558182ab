package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/tenx-pipeline/internal/handlers"
	"github.com/tendant/tenx-pipeline/pkg/runner"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP trigger and watch the inbox",
	Long: `Serve accepts project runs on POST /v1/process, reports the last run of a
project on GET /v1/projects/{key} and exposes Prometheus metrics on /metrics.
When paths.inbox_dir is set, project documents written there are imported
and processed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	handler := handlers.NewAsyncHandler(ctx, r.Orchestrator, r.Store, logger)
	mux := http.NewServeMux()
	handler.Routes(mux, r.Registry)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if r.Inbox != nil {
		startRun := func(_ context.Context, key string) { handler.Start(key) }
		go func() {
			if err := r.Inbox.Scan(ctx, startRun); err != nil {
				logger.Warn("inbox scan failed", "error", err)
			}
			if err := r.Inbox.Watch(ctx, startRun); err != nil {
				logger.Error("inbox watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pipeline server ready", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server failed", "error", serveErr)
		}
		stop()
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	handler.Wait()
	if err := r.Shutdown(shutdownTimeout); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	logger.Info("server stopped")
	return serveErr
}
