package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"taskstream/internal/broadcast"
	"taskstream/internal/config"
	"taskstream/internal/domain/record"
	"taskstream/internal/domain/summary"
	"taskstream/internal/domain/transaction"
	"taskstream/internal/infrastructure/kafka"
	"taskstream/internal/infrastructure/memory"
	"taskstream/internal/infrastructure/postgres"
	"taskstream/internal/infrastructure/redis"
	"taskstream/internal/usecase"
	"taskstream/internal/worker"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// Stores groups the repositories with the transactor each one participates in.
type Stores struct {
	Transactions  record.Repository[transaction.Transaction]
	TransactionTx record.Transactor
	Summaries     record.Repository[summary.Summary]
	SummaryTx     record.Transactor
}

// Factory lazily builds and caches the collaborators selected by cfg.Drivers.
// Memory drivers are shared by everything built from the same Factory.
type Factory struct {
	cfg    *config.Config
	base   *slog.Logger
	logger *slog.Logger

	mu       sync.Mutex
	pgPool   *pgxpool.Pool
	redisCli *go_redis.Client
	stores   *Stores
	channel  broadcast.Channel
	memQueue *memory.Queue
	producer *kafka.Producer
	consumer *kafka.Consumer
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		base:   logger,
		logger: logger.With("component", "factory"),
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.postgres(ctx)
}

func (f *Factory) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	for i := 0; i < connectAttempts; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
			MaxConns: f.cfg.Postgres.MaxConns,
		})
		if err == nil {
			break
		}
		f.logger.Warn("failed to connect to postgres, retrying",
			"attempt", i+1,
			"max_attempts", connectAttempts,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redis(ctx)
}

func (f *Factory) redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:         f.cfg.Redis.Addr,
		Password:     f.cfg.Redis.Password,
		DB:           f.cfg.Redis.DB,
		PoolSize:     f.cfg.Redis.PoolSize,
		MinIdleConns: f.cfg.Redis.MinIdleConns,
		DialTimeout:  f.cfg.Redis.DialTimeout,
		ReadTimeout:  f.cfg.Redis.ReadTimeout,
		WriteTimeout: f.cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

func (f *Factory) Stores(ctx context.Context) (*Stores, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stores != nil {
		return f.stores, nil
	}

	switch f.cfg.Drivers.Store {
	case config.DriverMemory:
		txs := memory.NewStore[transaction.Transaction]()
		sums := memory.NewStore[summary.Summary]()
		f.stores = &Stores{Transactions: txs, TransactionTx: txs, Summaries: sums, SummaryTx: sums}
	default:
		pool, err := f.postgres(ctx)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		tm := postgres.NewTxManager(pool)
		f.stores = &Stores{
			Transactions:  postgres.NewTransactionRepository(pool),
			TransactionTx: tm,
			Summaries:     postgres.NewSummaryRepository(pool),
			SummaryTx:     tm,
		}
	}
	return f.stores, nil
}

// Broadcast returns the event channel shared by publishers and the relay.
func (f *Factory) Broadcast(ctx context.Context) (broadcast.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.channel != nil {
		return f.channel, nil
	}

	switch f.cfg.Drivers.Broadcast {
	case config.DriverMemory:
		f.channel = memory.NewBus(0, f.base)
	default:
		client, err := f.redis(ctx)
		if err != nil {
			return nil, err
		}
		f.channel = redis.NewBroadcast(client, f.base)
	}
	return f.channel, nil
}

// Cache returns the read-through cache, or nil when Redis is not in use.
func (f *Factory) Cache(ctx context.Context) (usecase.Cache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.Drivers.Broadcast != config.DriverRedis {
		return nil, nil
	}
	client, err := f.redis(ctx)
	if err != nil {
		return nil, err
	}
	return redis.NewCache(client, f.base), nil
}

func (f *Factory) Enqueuer() worker.Enqueuer {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.Drivers.Queue == config.DriverMemory {
		return f.memoryQueue()
	}
	if f.producer == nil {
		f.producer = kafka.NewProducer(kafka.Config{
			Brokers: f.cfg.Kafka.Brokers,
			Topic:   f.cfg.Kafka.JobsTopic,
		})
	}
	return f.producer
}

func (f *Factory) JobSource() worker.Source {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.Drivers.Queue == config.DriverMemory {
		return f.memoryQueue()
	}
	if f.consumer == nil {
		f.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:     f.cfg.Kafka.Brokers,
			Topic:       f.cfg.Kafka.JobsTopic,
			GroupID:     f.cfg.Kafka.GroupID,
			StartOffset: f.cfg.Kafka.StartOffset,
		}, f.base)
	}
	return f.consumer
}

func (f *Factory) memoryQueue() *memory.Queue {
	if f.memQueue == nil {
		f.memQueue = memory.NewQueue(0)
	}
	return f.memQueue
}

func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.consumer != nil {
		if err := f.consumer.Close(); err != nil {
			f.logger.Warn("failed to close kafka consumer", "error", err)
		}
	}
	if f.producer != nil {
		if err := f.producer.Close(); err != nil {
			f.logger.Warn("failed to close kafka producer", "error", err)
		}
	}
	if f.memQueue != nil {
		_ = f.memQueue.Close()
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		_ = f.redisCli.Close()
	}
}
