package events

import (
	"context"
	"log/slog"
	"time"

	"taskstream/internal/broadcast"
	"taskstream/internal/domain/event"
)

const DefaultPublishTimeout = 2 * time.Second

// Publisher writes events to the shared broadcast channel. Publishing is
// fire-and-forget: failures are logged and counted, never returned, because
// the persisted state is the source of truth and remains queryable.
type Publisher struct {
	bus     broadcast.Publisher
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

func NewPublisher(bus broadcast.Publisher, channel string, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		bus:     bus,
		channel: channel,
		timeout: timeout,
		logger:  logger.With("component", "publisher"),
	}
}

func (p *Publisher) Publish(ctx context.Context, ev event.Event) {
	payload, err := ev.Encode()
	if err != nil {
		publishErrors.Inc()
		p.logger.Error("failed to encode event", "event", ev.Kind, "id", ev.ID, "error", err)
		return
	}

	// Detached from the caller's cancellation: a job finishing during
	// shutdown should still announce its committed state.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.bus.Publish(pubCtx, p.channel, payload); err != nil {
		publishErrors.Inc()
		p.logger.Warn("failed to publish event", "event", ev.Kind, "id", ev.ID, "channel", p.channel, "error", err)
		return
	}

	eventsPublished.WithLabelValues(string(ev.Kind)).Inc()
	p.logger.Debug("event published", "event", ev.Kind, "id", ev.ID, "status", ev.Status)
}
