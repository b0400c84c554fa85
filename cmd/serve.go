package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/api"
	"github.com/JakeFAU/noticewatch/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the pipeline on an interval and serves health and metrics",
		Long: `Runs the pipeline immediately and then every serve.interval, never two
runs at once. Exposes /healthz, /readyz, /metrics and /v1/runs/last on
serve.port until SIGINT or SIGTERM.`,
		RunE: serve,
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()
	logger := appInstance.Logger()
	cfg := appInstance.Config()

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	scheduler := pipeline.NewScheduler(appInstance.Runner(), cfg.Serve.Interval, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Serve.Port),
		Handler:           api.NewServer(scheduler, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server started", zap.Int("port", cfg.Serve.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		logger.Info("Scheduler started", zap.Duration("interval", cfg.Serve.Interval))
		scheduler.Start(ctx)
	}()

	<-ctx.Done()
	logger.Info("Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	<-schedulerDone
	logger.Info("Shutdown complete")

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}
