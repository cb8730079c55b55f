package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskstream/internal/application/factories/infrastructure"
	"taskstream/internal/application/factories/pipeline"
	"taskstream/internal/config"
)

func main() {
	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: metricsMux}
	go func() {
		logger.Info("metrics server starting", "addr", cfg.Worker.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	// Infrastructure
	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	p, err := pipeline.New(ctx, infraFactory, cfg, logger)
	if err != nil {
		logger.Error("failed to init worker", "error", err)
		os.Exit(1)
	}

	logger.Info("worker started",
		"queue", cfg.Drivers.Queue,
		"topic", cfg.Kafka.JobsTopic,
		"group", cfg.Kafka.GroupID,
	)

	// Run
	p.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server forced to shutdown", "error", err)
	}

	logger.Info("worker exited")
}
