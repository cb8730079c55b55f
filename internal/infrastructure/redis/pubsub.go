package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"taskstream/internal/broadcast"
)

// Broadcast carries event messages over Redis pub/sub.
type Broadcast struct {
	client *redis.Client
	logger *slog.Logger
}

func NewBroadcast(client *redis.Client, logger *slog.Logger) *Broadcast {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcast{client: client, logger: logger.With("component", "redis_pubsub")}
}

func (b *Broadcast) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe blocks until Redis confirms the subscription.
func (b *Broadcast) Subscribe(ctx context.Context, channel string) (broadcast.Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	b.logger.Info("subscribed", "channel", channel)
	return &subscription{ps: ps}, nil
}

type subscription struct {
	ps        *redis.PubSub
	closeOnce sync.Once
	closeErr  error
}

func (s *subscription) Poll(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	msg, err := s.ps.ReceiveTimeout(ctx, timeout)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		return nil, false, err
	}

	switch m := msg.(type) {
	case *redis.Message:
		return []byte(m.Payload), true, nil
	default:
		// Subscription confirmations and pongs carry no event.
		return nil, false, nil
	}
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ps.Close()
	})
	return s.closeErr
}
