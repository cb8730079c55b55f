// Package broadcast defines the pub/sub channel contract that carries events
// from the job executor's commits to the process that hosts the observers.
// No durability is implied: a message published while nobody is subscribed
// is lost.
package broadcast

import (
	"context"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Subscriber interface {
	// Subscribe returns once the subscription is active.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

type Subscription interface {
	// Poll waits at most timeout for the next message. ok is false when the
	// wait expired without a message.
	Poll(ctx context.Context, timeout time.Duration) (payload []byte, ok bool, err error)
	// Close releases the subscription and its connection. Safe to call more than once.
	Close() error
}

// Channel is a transport that can both publish and subscribe.
type Channel interface {
	Publisher
	Subscriber
}
