package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"taskstream/internal/broadcast"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// Bus is an in-process broadcast channel. Like Redis pub/sub it keeps
// nothing for absent subscribers and drops messages for slow ones.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscription]struct{}
	buffer      int
	logger      *slog.Logger
}

func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 128
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]map[*subscription]struct{}),
		buffer:      buffer,
		logger:      logger.With("component", "memory_bus"),
	}
}

func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subscribers[channel]))
	for sub := range b.subscribers[channel] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	msg := append([]byte(nil), payload...)
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			b.logger.Warn("dropping message for slow subscriber", "channel", channel)
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, channel string) (broadcast.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscription{
		bus:     b,
		channel: channel,
		ch:      make(chan []byte, b.buffer),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[*subscription]struct{})
	}
	b.subscribers[channel][sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

// Subscribers reports the number of live subscriptions on channel.
func (b *Bus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers[sub.channel], sub)
	if len(b.subscribers[sub.channel]) == 0 {
		delete(b.subscribers, sub.channel)
	}
}

type subscription struct {
	bus       *Bus
	channel   string
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) Poll(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-s.ch:
		return msg, true, nil
	case <-timer.C:
		return nil, false, nil
	case <-s.done:
		return nil, false, ErrSubscriptionClosed
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
	return nil
}
