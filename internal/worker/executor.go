package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"taskstream/internal/domain/event"
	"taskstream/internal/domain/job"
	"taskstream/internal/domain/record"
)

var ErrUnknownKind = errors.New("unknown job kind")

var (
	jobsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_executed_total",
		Help: "The total number of executed jobs by kind and resulting status",
	}, []string{"kind", "status"})
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Time taken to execute a job, simulated latency included",
		Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
	}, []string{"kind"})
)

// Outcome is the structured result of one job execution.
type Outcome struct {
	OK          bool          `json:"ok"`
	ID          string        `json:"id"`
	Status      record.Status `json:"status,omitempty"`
	Error       string        `json:"error,omitempty"`
	Redelivered bool          `json:"redelivered,omitempty"`
}

// EventPublisher is the fire-and-forget sink for state-change events.
type EventPublisher interface {
	Publish(ctx context.Context, ev event.Event)
}

// Handler executes jobs of a single kind.
type Handler interface {
	Handle(ctx context.Context, recordID string, forceFail bool) (Outcome, error)
}

type Executor struct {
	handlers map[job.Kind]Handler
	logger   *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		handlers: make(map[job.Kind]Handler),
		logger:   logger.With("component", "executor"),
	}
}

func (e *Executor) Register(kind job.Kind, h Handler) *Executor {
	e.handlers[kind] = h
	return e
}

// Execute runs j. A missing record is a failed Outcome with a nil error and
// must not be retried; a non-nil error means the job may succeed on retry,
// except for ErrUnknownKind.
func (e *Executor) Execute(ctx context.Context, j job.Job) (Outcome, error) {
	h, ok := e.handlers[j.Kind]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownKind, j.Kind)
	}

	started := time.Now()
	out, err := h.Handle(ctx, j.RecordID, j.ForceFail)
	jobDuration.WithLabelValues(string(j.Kind)).Observe(time.Since(started).Seconds())
	if err != nil {
		jobsExecuted.WithLabelValues(string(j.Kind), "error").Inc()
		return out, fmt.Errorf("%s %s: %w", j.Kind, j.RecordID, err)
	}

	label := string(out.Status)
	if !out.OK {
		label = out.Error
	}
	jobsExecuted.WithLabelValues(string(j.Kind), label).Inc()

	e.logger.Info("job executed",
		"kind", j.Kind,
		"id", j.RecordID,
		"ok", out.OK,
		"status", out.Status,
		"error", out.Error,
		"redelivered", out.Redelivered,
	)
	return out, nil
}

// simulateWork blocks for d or until ctx is done.
func simulateWork(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
