package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverKafka    = "kafka"
	DriverMemory   = "memory"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Drivers  Drivers  `yaml:"drivers"`
	Events   Events   `yaml:"events"`
	Jobs     Jobs     `yaml:"jobs"`
	Stream   Stream   `yaml:"stream"`
	Worker   Worker   `yaml:"worker"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"taskstream"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8000"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"taskstream"`
	MaxConns int    `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"10"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"1s"`

	PoolSize     int           `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"1"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	JobsTopic   string   `yaml:"jobs_topic" env:"KAFKA_JOBS_TOPIC" env-default:"taskstream-jobs"`
	GroupID     string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"taskstream-workers"`
	StartOffset string   `yaml:"start_offset" env:"KAFKA_START_OFFSET" env-default:"earliest"`
}

// Drivers selects the backing implementation of each collaborator.
// The memory drivers only make sense inside a single process.
type Drivers struct {
	Store     string `yaml:"store" env:"STORE_DRIVER" env-default:"postgres"`
	Queue     string `yaml:"queue" env:"QUEUE_DRIVER" env-default:"kafka"`
	Broadcast string `yaml:"broadcast" env:"BROADCAST_DRIVER" env-default:"redis"`
}

type Events struct {
	Channel        string        `yaml:"channel" env:"EVENTS_CHANNEL" env-default:"tx-events"`
	PollTimeout    time.Duration `yaml:"poll_timeout" env:"EVENTS_POLL_TIMEOUT" env-default:"1s"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"EVENTS_PUBLISH_TIMEOUT" env-default:"2s"`
}

type Jobs struct {
	TransactionDelay time.Duration `yaml:"transaction_delay" env:"JOBS_TRANSACTION_DELAY" env-default:"3s"`
	SummaryDelay     time.Duration `yaml:"summary_delay" env:"JOBS_SUMMARY_DELAY" env-default:"2s"`
	SummaryMaxWords  int           `yaml:"summary_max_words" env:"JOBS_SUMMARY_MAX_WORDS" env-default:"60"`
	PreviewLength    int           `yaml:"preview_length" env:"JOBS_PREVIEW_LENGTH" env-default:"120"`
}

type Stream struct {
	KeepAlive   time.Duration `yaml:"keep_alive" env:"STREAM_KEEP_ALIVE" env-default:"30s"`
	SendTimeout time.Duration `yaml:"send_timeout" env:"STREAM_SEND_TIMEOUT" env-default:"5s"`
}

type Worker struct {
	Inline      bool          `yaml:"inline" env:"WORKER_INLINE" env-default:"false"`
	MaxRetries  int           `yaml:"max_retries" env:"WORKER_MAX_RETRIES" env-default:"5"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"WORKER_RETRY_BASE_DELAY" env-default:"1s"`
	MetricsAddr string        `yaml:"metrics_addr" env:"WORKER_METRICS_ADDR" env-default:":9093"`
	SweepEvery  time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"30s"`
	StaleAfter  time.Duration `yaml:"sweep_stale_after" env:"SWEEP_STALE_AFTER" env-default:"2m"`
	SweepBatch  int           `yaml:"sweep_batch" env:"SWEEP_BATCH" env-default:"50"`
}

// SlogLevel maps Log.Level onto slog, defaulting to info.
func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Validate() error {
	check := func(name, value string, allowed ...string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("config error: %s=%q, want one of %v", name, value, allowed)
	}
	if err := check("STORE_DRIVER", c.Drivers.Store, DriverPostgres, DriverMemory); err != nil {
		return err
	}
	if err := check("QUEUE_DRIVER", c.Drivers.Queue, DriverKafka, DriverMemory); err != nil {
		return err
	}
	if err := check("BROADCAST_DRIVER", c.Drivers.Broadcast, DriverRedis, DriverMemory); err != nil {
		return err
	}
	if c.Events.PollTimeout <= 0 {
		return fmt.Errorf("config error: EVENTS_POLL_TIMEOUT must be positive")
	}
	return nil
}

// New loads config.yaml (if present) and then the environment, after
// populating the environment from an optional .env file.
func New() (*Config, error) {
	return Load("config.yaml")
}

func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config error: load .env: %w", err)
	}

	cfg := &Config{}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
