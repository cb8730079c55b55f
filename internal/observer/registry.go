// Package observer keeps the set of live push connections of this process
// and fans relayed messages out to them.
package observer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultSendTimeout = 5 * time.Second
	DefaultKeepAlive   = 30 * time.Second
)

var ErrReceiveTimeout = errors.New("receive timeout")

var (
	observersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "observers_connected",
		Help: "The number of observers currently registered",
	})
	sendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_send_failures_total",
		Help: "The total number of failed sends that removed an observer",
	})
)

// Conn is the outbound half of an observer connection. A Conn is compared
// by identity; it carries no other identity.
type Conn interface {
	Accepted() bool
	Accept(ctx context.Context) error
	SendText(ctx context.Context, text string) error
}

// Transport is a full observer connection.
type Transport interface {
	Conn
	// ReceiveText returns ErrReceiveTimeout when nothing arrived within
	// timeout; the connection stays usable in that case.
	ReceiveText(ctx context.Context, timeout time.Duration) (string, error)
}

type Registry struct {
	mu sync.Mutex
	// active maps each observer to the stop func of its Serve loop, nil when
	// it was registered with Connect alone.
	active map[Conn]context.CancelFunc

	sendTimeout time.Duration
	keepAlive   time.Duration
	logger      *slog.Logger
}

type Option func(*Registry)

func WithSendTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

func WithKeepAlive(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.keepAlive = d
		}
	}
}

func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		active:      make(map[Conn]context.CancelFunc),
		sendTimeout: DefaultSendTimeout,
		keepAlive:   DefaultKeepAlive,
		logger:      logger.With("component", "observers"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect accepts conn if needed and registers it.
func (r *Registry) Connect(ctx context.Context, conn Conn) error {
	return r.connect(ctx, conn, nil)
}

func (r *Registry) connect(ctx context.Context, conn Conn, stop context.CancelFunc) error {
	if !conn.Accepted() {
		if err := conn.Accept(ctx); err != nil {
			return fmt.Errorf("accept observer: %w", err)
		}
	}

	r.mu.Lock()
	current, ok := r.active[conn]
	if !ok {
		observersConnected.Inc()
	}
	if current == nil {
		r.active[conn] = stop
	}
	n := len(r.active)
	r.mu.Unlock()

	r.logger.Info("observer connected", "observers", n)
	return nil
}

// Disconnect removes conn and ends its Serve loop. Unknown or already removed
// connections are ignored.
func (r *Registry) Disconnect(conn Conn) {
	if r.remove(conn) {
		r.logger.Info("observer disconnected", "observers", r.Len())
	}
}

func (r *Registry) remove(conn Conn) bool {
	r.mu.Lock()
	stop, ok := r.active[conn]
	if ok {
		delete(r.active, conn)
		observersConnected.Dec()
	}
	r.mu.Unlock()

	if ok && stop != nil {
		stop()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Broadcast sends message to every registered observer in parallel and
// returns when all sends have finished, so consecutive broadcasts reach each
// observer in call order. Observers whose send fails are removed and closed,
// which also ends their Serve loop. The lock is never held while sending.
func (r *Registry) Broadcast(ctx context.Context, message string) {
	r.mu.Lock()
	snapshot := make([]Conn, 0, len(r.active))
	for conn := range r.active {
		snapshot = append(snapshot, conn)
	}
	r.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	var (
		wg     sync.WaitGroup
		deadMu sync.Mutex
		dead   []Conn
	)
	for _, conn := range snapshot {
		wg.Add(1)
		go func(conn Conn) {
			defer wg.Done()
			if err := r.send(ctx, conn, message); err != nil {
				r.logger.Warn("observer send failed", "error", err)
				deadMu.Lock()
				dead = append(dead, conn)
				deadMu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	if len(dead) == 0 {
		return
	}

	for _, conn := range dead {
		if !r.remove(conn) {
			continue
		}
		sendFailures.Inc()
		if c, ok := conn.(io.Closer); ok {
			if err := c.Close(); err != nil {
				r.logger.Debug("close pruned observer", "error", err)
			}
		}
	}
	r.logger.Info("pruned observers after failed send", "pruned", len(dead), "observers", r.Len())
}

func (r *Registry) send(ctx context.Context, conn Conn, message string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("send panicked: %v", p)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	return conn.SendText(sendCtx, message)
}

// Serve registers t and keeps it registered until the client goes away, ctx
// ends, or the observer is removed from the registry. Idle periods longer
// than the keep-alive interval are not errors. Inbound text is read only to
// detect liveness and is otherwise ignored.
func (r *Registry) Serve(ctx context.Context, t Transport) error {
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	if err := r.connect(serveCtx, t, stop); err != nil {
		return err
	}
	defer r.Disconnect(t)

	for {
		if err := serveCtx.Err(); err != nil {
			return nil
		}
		_, err := t.ReceiveText(serveCtx, r.keepAlive)
		switch {
		case err == nil, errors.Is(err, ErrReceiveTimeout):
			continue
		case serveCtx.Err() != nil:
			return nil
		default:
			r.logger.Debug("observer transport closed", "error", err)
			return nil
		}
	}
}
