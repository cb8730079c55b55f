package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"taskstream/internal/api"
	"taskstream/internal/application/factories/infrastructure"
	"taskstream/internal/application/factories/pipeline"
	"taskstream/internal/config"
	"taskstream/internal/events"
	"taskstream/internal/observer"
	"taskstream/internal/usecase"
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

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	// Dependencies
	stores, err := infraFactory.Stores(ctx)
	if err != nil {
		logger.Error("failed to init stores", "error", err)
		os.Exit(1)
	}
	channel, err := infraFactory.Broadcast(ctx)
	if err != nil {
		logger.Error("failed to init broadcast channel", "error", err)
		os.Exit(1)
	}
	cache, err := infraFactory.Cache(ctx)
	if err != nil {
		logger.Error("failed to init cache", "error", err)
		os.Exit(1)
	}
	publisher := events.NewPublisher(channel, cfg.Events.Channel, cfg.Events.PublishTimeout, logger)
	queue := infraFactory.Enqueuer()

	registry := observer.NewRegistry(logger,
		observer.WithSendTimeout(cfg.Stream.SendTimeout),
		observer.WithKeepAlive(cfg.Stream.KeepAlive),
	)

	// UseCases
	handlers := api.NewHandlers(api.HandlersDeps{
		CreateTransaction: usecase.NewCreateTransaction(stores.Transactions, publisher, queue, logger),
		GetTransaction:    usecase.NewGetRecord(stores.Transactions, cache, "transaction", cfg.Redis.CacheTTL),
		ListTransactions:  usecase.NewListRecords(stores.Transactions),
		CreateSummary:     usecase.NewCreateSummary(stores.Summaries, publisher, queue, logger),
		GetSummary:        usecase.NewGetRecord(stores.Summaries, cache, "summary", cfg.Redis.CacheTTL),
		ListSummaries:     usecase.NewListRecords(stores.Summaries),
		Observers:         registry,
		Logger:            logger,
	})

	// Event relay: one per process, from startup until shutdown.
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	relay := events.NewRelay(channel, cfg.Events.Channel, registry, cfg.Events.PollTimeout, logger)
	relayDone := make(chan error, 1)
	go func() { relayDone <- relay.Supervise(relayCtx, events.DefaultRestartBackoff) }()

	var workers sync.WaitGroup
	if cfg.Worker.Inline {
		p, err := pipeline.New(ctx, infraFactory, cfg, logger)
		if err != nil {
			logger.Error("failed to init inline worker", "error", err)
			os.Exit(1)
		}
		workers.Add(1)
		go func() {
			defer workers.Done()
			p.Run(ctx)
		}()
		logger.Info("inline worker started")
	}

	// Observer streams end with this context rather than with the request.
	streamCtx, stopStreams := context.WithCancel(context.Background())
	defer stopStreams()

	srv := &http.Server{
		Addr:        ":" + cfg.HTTP.Port,
		Handler:     api.NewRouter(handlers),
		BaseContext: func(net.Listener) context.Context { return streamCtx },
	}

	go func() {
		logger.Info("Server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	var (
		relayErr    error
		relayExited bool
	)
	select {
	case <-ctx.Done():
	case relayErr = <-relayDone:
		// Push delivery is gone; stop serving rather than run without it.
		relayExited = true
		logger.Error("relay exited before shutdown", "error", relayErr)
		cancel()
	}
	logger.Info("Shutting down server...")

	stopStreams()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	workers.Wait()

	stopRelay()
	if !relayExited {
		relayErr = <-relayDone
	}
	if !errors.Is(relayErr, context.Canceled) {
		logger.Error("relay stopped unexpectedly", "error", relayErr)
		infraFactory.Close()
		os.Exit(1)
	}
	logger.Info("relay stopped")

	logger.Info("Server exiting")
}
