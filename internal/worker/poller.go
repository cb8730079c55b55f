package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"taskstream/internal/domain/job"
	"taskstream/internal/domain/record"
)

var jobsRequeued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sweeper_jobs_requeued_total",
	Help: "The total number of stale pending records re-enqueued",
}, []string{"kind"})

// Enqueuer puts jobs on the queue. Enqueue returns once the queue has
// accepted the job; it never waits for execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, j job.Job) error
}

// StaleRecord is a pending record whose job may have been lost.
type StaleRecord struct {
	ID        string
	ForceFail bool
}

// StaleLister finds records stuck in pending. It adapts a
// record.Repository to the sweeper regardless of entity type.
type StaleLister func(ctx context.Context, createdBefore time.Time, limit int) ([]StaleRecord, error)

// PendingSource pairs a job kind with the records it processes.
type PendingSource struct {
	Kind  job.Kind
	Stale StaleLister
}

// StaleFrom adapts repo for a PendingSource.
func StaleFrom[T record.Entity](repo record.Repository[T]) StaleLister {
	return func(ctx context.Context, createdBefore time.Time, limit int) ([]StaleRecord, error) {
		items, err := repo.ListStalePending(ctx, createdBefore, limit)
		if err != nil {
			return nil, err
		}
		out := make([]StaleRecord, 0, len(items))
		for _, item := range items {
			d := item.Dispatch()
			if !d.Queued {
				continue
			}
			out = append(out, StaleRecord{ID: item.RecordID(), ForceFail: d.ForceFail})
		}
		return out, nil
	}
}

// Sweeper re-enqueues records that stayed pending for too long, recovering
// jobs lost between the record commit and the enqueue. Only records created
// with a job are swept, and the job keeps the failure flag stored with them.
type Sweeper struct {
	queue      Enqueuer
	sources    []PendingSource
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	now        func() time.Time
	logger     *slog.Logger
}

func NewSweeper(queue Enqueuer, sources []PendingSource, interval, staleAfter time.Duration, batch int, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		queue:      queue,
		sources:    sources,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
		logger:     logger.With("component", "sweeper"),
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("pending sweeper started", "interval", s.interval, "stale_after", s.staleAfter)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("failed to sweep pending records", "error", err)
			}
		}
	}
}

// Sweep runs one pass and returns the number of jobs enqueued.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	total := 0
	for _, src := range s.sources {
		stale, err := src.Stale(ctx, cutoff, s.batch)
		if err != nil {
			return total, err
		}
		for _, rec := range stale {
			j := job.Job{Kind: src.Kind, RecordID: rec.ID, ForceFail: rec.ForceFail, EnqueuedAt: s.now().UTC()}
			if err := s.queue.Enqueue(ctx, j); err != nil {
				return total, err
			}
			jobsRequeued.WithLabelValues(string(src.Kind)).Inc()
			total++
		}
	}
	if total > 0 {
		s.logger.Info("requeued stale pending records", "count", total)
	}
	return total, nil
}
