// Package pipeline wires the job executor, its handlers, the queue runner
// and the pending sweeper from an infrastructure factory.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"taskstream/internal/application/factories/infrastructure"
	"taskstream/internal/config"
	"taskstream/internal/domain/job"
	"taskstream/internal/events"
	"taskstream/internal/worker"
)

type Pipeline struct {
	Runner  *worker.Runner
	Sweeper *worker.Sweeper
	logger  *slog.Logger
}

func New(ctx context.Context, infra *infrastructure.Factory, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stores, err := infra.Stores(ctx)
	if err != nil {
		return nil, err
	}
	channel, err := infra.Broadcast(ctx)
	if err != nil {
		return nil, err
	}
	publisher := events.NewPublisher(channel, cfg.Events.Channel, cfg.Events.PublishTimeout, logger)

	executor := worker.NewExecutor(logger).
		Register(job.ProcessTransaction, worker.NewTransactionHandler(
			stores.TransactionTx, stores.Transactions, publisher, cfg.Jobs.TransactionDelay,
		)).
		Register(job.SummarizeText, worker.NewSummaryHandler(
			stores.SummaryTx, stores.Summaries, publisher, cfg.Jobs.SummaryDelay,
			cfg.Jobs.SummaryMaxWords, cfg.Jobs.PreviewLength,
		))

	runner := worker.NewRunner(infra.JobSource(), executor, worker.RunnerConfig{
		MaxRetries: cfg.Worker.MaxRetries,
		BaseDelay:  cfg.Worker.BaseDelay,
	}, logger)

	sweeper := worker.NewSweeper(infra.Enqueuer(), []worker.PendingSource{
		{Kind: job.ProcessTransaction, Stale: worker.StaleFrom(stores.Transactions)},
		{Kind: job.SummarizeText, Stale: worker.StaleFrom(stores.Summaries)},
	}, cfg.Worker.SweepEvery, cfg.Worker.StaleAfter, cfg.Worker.SweepBatch, logger)

	return &Pipeline{Runner: runner, Sweeper: sweeper, logger: logger}, nil
}

// Run runs the runner and the sweeper until ctx is done.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := p.Sweeper.Run(ctx); err != nil {
			p.logger.Error("sweeper stopped with error", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := p.Runner.Run(ctx); err != nil {
			p.logger.Error("runner stopped with error", "error", err)
		}
	}()

	wg.Wait()
}
