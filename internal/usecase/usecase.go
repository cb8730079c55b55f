package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"taskstream/internal/domain/event"
	"taskstream/internal/domain/job"
)

var ErrInvalidInput = errors.New("invalid input")

var enqueueErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "usecase_enqueue_errors_total",
	Help: "The total number of jobs that could not be enqueued after record creation",
}, []string{"kind"})

type EventPublisher interface {
	Publish(ctx context.Context, ev event.Event)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, j job.Job) error
}

// Cache is an optional read-through cache for single-record reads.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// enqueue hands j to the queue. The record is already committed, so a
// failure here is logged and left to the pending sweeper.
func enqueue(ctx context.Context, q Enqueuer, j job.Job, logger *slog.Logger) {
	if err := q.Enqueue(ctx, j); err != nil {
		enqueueErrors.WithLabelValues(string(j.Kind)).Inc()
		logger.Error("failed to enqueue job", "kind", j.Kind, "id", j.RecordID, "error", err)
	}
}
