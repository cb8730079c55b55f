package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"taskstream/internal/domain/job"
)

var jobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jobs_dropped_total",
	Help: "The total number of jobs acknowledged without a successful execution",
}, []string{"reason"})

// Source hands out queued jobs. Fetch blocks until a job is available.
type Source interface {
	Fetch(ctx context.Context) (job.Delivery, error)
}

// JobExecutor is satisfied by *Executor.
type JobExecutor interface {
	Execute(ctx context.Context, j job.Job) (Outcome, error)
}

type RunnerConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	// FetchBackoff is the pause after a failed fetch.
	FetchBackoff time.Duration
}

// Runner drains a Source into an executor with bounded retries.
type Runner struct {
	source   Source
	executor JobExecutor
	cfg      RunnerConfig
	logger   *slog.Logger
}

func NewRunner(source Source, executor JobExecutor, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		source:   source,
		executor: executor,
		cfg:      cfg,
		logger:   logger.With("component", "runner"),
	}
}

// Run returns nil once ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("job runner started", "max_retries", r.cfg.MaxRetries)

	for {
		d, err := r.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("job runner stopping")
				return nil
			}
			r.logger.Error("failed to fetch job", "error", err)
			if !sleepCtx(ctx, r.cfg.FetchBackoff) {
				return nil
			}
			continue
		}

		r.process(ctx, d)
	}
}

func (r *Runner) process(ctx context.Context, d job.Delivery) {
	log := r.logger.With("kind", d.Job.Kind, "id", d.Job.RecordID)

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.cfg.BaseDelay * time.Duration(1<<(attempt-1))
			log.Info("retry attempt", "attempt", attempt, "max", r.cfg.MaxRetries, "backoff", backoff)
			if !sleepCtx(ctx, backoff) {
				// Leave the delivery unacked so the queue hands it out again.
				return
			}
		}

		out, err := r.executor.Execute(ctx, d.Job)
		if err == nil {
			if !out.OK {
				jobsDropped.WithLabelValues(out.Error).Inc()
				log.Warn("job could not run", "error", out.Error)
			}
			r.ack(ctx, d, log)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrUnknownKind) {
			jobsDropped.WithLabelValues("unknown_kind").Inc()
			log.Error("dropping job", "error", err)
			r.ack(ctx, d, log)
			return
		}
		log.Error("job execution failed", "attempt", attempt, "error", err)
	}

	jobsDropped.WithLabelValues("retries_exhausted").Inc()
	log.Error("DLQ: dropping job after retries", "retries", r.cfg.MaxRetries)
	r.ack(ctx, d, log)
}

func (r *Runner) ack(ctx context.Context, d job.Delivery, log *slog.Logger) {
	if d.Ack == nil {
		return
	}
	if err := d.Ack(ctx); err != nil {
		log.Error("failed to ack job", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
