package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"taskstream/internal/broadcast"
)

const (
	DefaultPollTimeout = time.Second

	// errorPause keeps a broken subscription from spinning.
	errorPause = 100 * time.Millisecond

	DefaultRestartBackoff = time.Second
	maxRestartBackoff     = 30 * time.Second
)

// Broadcaster receives every relayed message.
type Broadcaster interface {
	Broadcast(ctx context.Context, message string)
}

// Relay forwards messages from the broadcast channel to the observers of
// this process. One Relay runs per process, from startup until shutdown.
type Relay struct {
	subscriber  broadcast.Subscriber
	channel     string
	target      Broadcaster
	pollTimeout time.Duration
	logger      *slog.Logger
}

func NewRelay(subscriber broadcast.Subscriber, channel string, target Broadcaster, pollTimeout time.Duration, logger *slog.Logger) *Relay {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		subscriber:  subscriber,
		channel:     channel,
		target:      target,
		pollTimeout: pollTimeout,
		logger:      logger.With("component", "relay"),
	}
}

// Run subscribes and relays until ctx is cancelled. It always returns a
// non-nil error: the subscription failure, or ctx.Err() once cancelled, so
// the owner can tell a clean shutdown from a crash. The subscription is
// closed exactly once on every exit path.
func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.subscriber.Subscribe(ctx, r.channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	var closeOnce sync.Once
	release := func() {
		closeOnce.Do(func() {
			if err := sub.Close(); err != nil {
				r.logger.Warn("failed to close subscription", "channel", r.channel, "error", err)
			}
			r.logger.Info("subscription closed", "channel", r.channel)
		})
	}
	defer release()

	r.logger.Info("subscribed", "channel", r.channel)

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("relay cancelled", "channel", r.channel)
			return err
		}

		payload, ok, err := sub.Poll(ctx, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			relayErrors.Inc()
			r.logger.Error("poll failed", "channel", r.channel, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(errorPause):
			}
			continue
		}
		if !ok {
			continue
		}

		r.forward(ctx, payload)
	}
}

// Supervise runs the relay until ctx is cancelled, restarting it with
// exponential backoff whenever Run exits early, for example when the broadcast
// channel cannot be subscribed. It returns ctx.Err().
func (r *Relay) Supervise(ctx context.Context, backoff time.Duration) error {
	if backoff <= 0 {
		backoff = DefaultRestartBackoff
	}
	delay := backoff
	for {
		started := time.Now()
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A relay that stayed up for a while starts over from the base delay.
		if time.Since(started) > maxRestartBackoff {
			delay = backoff
		}
		relayRestarts.Inc()
		r.logger.Error("relay exited, restarting", "channel", r.channel, "error", err, "backoff", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay = min(delay*2, maxRestartBackoff)
	}
}

func (r *Relay) forward(ctx context.Context, payload []byte) {
	defer func() {
		if p := recover(); p != nil {
			relayErrors.Inc()
			r.logger.Error("broadcast panicked", "panic", p)
		}
	}()

	message := strings.ToValidUTF8(string(payload), "\uFFFD")
	r.logger.Debug("relaying event", "message", message)
	r.target.Broadcast(ctx, message)
	relayMessages.Inc()
}
