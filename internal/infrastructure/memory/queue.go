package memory

import (
	"context"
	"errors"
	"sync"

	"taskstream/internal/domain/job"
)

var ErrQueueClosed = errors.New("queue closed")

// Queue is a single-process job queue. Delivery is at-most-once: a job
// fetched and never acked is not handed out again.
type Queue struct {
	jobs      chan job.Job
	done      chan struct{}
	closeOnce sync.Once
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{
		jobs: make(chan job.Job, capacity),
		done: make(chan struct{}),
	}
}

func (q *Queue) Enqueue(ctx context.Context, j job.Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.jobs <- j:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Fetch(ctx context.Context) (job.Delivery, error) {
	select {
	case j := <-q.jobs:
		return job.Delivery{
			Job: j,
			Ack: func(context.Context) error { return nil },
		}, nil
	case <-q.done:
		return job.Delivery{}, ErrQueueClosed
	case <-ctx.Done():
		return job.Delivery{}, ctx.Err()
	}
}

func (q *Queue) Len() int { return len(q.jobs) }

func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
