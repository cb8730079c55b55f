package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.HTTP.Port)
	assert.Equal(t, DriverPostgres, cfg.Drivers.Store)
	assert.Equal(t, DriverKafka, cfg.Drivers.Queue)
	assert.Equal(t, DriverRedis, cfg.Drivers.Broadcast)
	assert.Equal(t, "tx-events", cfg.Events.Channel)
	assert.Equal(t, time.Second, cfg.Events.PollTimeout)
	assert.Equal(t, 30*time.Second, cfg.Stream.KeepAlive)
	assert.Equal(t, 3*time.Second, cfg.Jobs.TransactionDelay)
	assert.Equal(t, 2*time.Second, cfg.Jobs.SummaryDelay)
	assert.Equal(t, 60, cfg.Jobs.SummaryMaxWords)
	assert.Equal(t, 120, cfg.Jobs.PreviewLength)
	assert.Equal(t, 5, cfg.Worker.MaxRetries)
	assert.Equal(t, time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, 3*time.Second, cfg.Redis.ReadTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("QUEUE_DRIVER", "memory")
	t.Setenv("BROADCAST_DRIVER", "memory")
	t.Setenv("WORKER_INLINE", "true")
	t.Setenv("JOBS_TRANSACTION_DELAY", "10ms")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Drivers.Store)
	assert.True(t, cfg.Worker.Inline)
	assert.Equal(t, 10*time.Millisecond, cfg.Jobs.TransactionDelay)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: "9000"
events:
  channel: custom-events
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTP.Port)
	assert.Equal(t, "custom-events", cfg.Events.Channel)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", "rabbitmq")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_DRIVER")
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Log{Level: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Log{Level: "warning"}.SlogLevel())
	assert.Equal(t, slog.LevelError, Log{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Log{Level: ""}.SlogLevel())
}
