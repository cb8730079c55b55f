package kafka

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"taskstream/internal/domain/job"
)

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// StartOffset applies when the group has no committed offset yet:
	// "earliest" (default) or "latest".
	StartOffset string
}

// Consumer reads jobs from the jobs topic. An offset is committed only when
// the delivery is acked, so a crashed worker's jobs are redelivered.
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewConsumer(cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	startOffset := kafka.FirstOffset
	if strings.EqualFold(strings.TrimSpace(cfg.StartOffset), "latest") {
		startOffset = kafka.LastOffset
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: false, // Force IPv4
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,    // Process immediately
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
		Dialer:      dialer,
		StartOffset: startOffset,
	})
	return &Consumer{reader: r, logger: logger.With("component", "kafka_consumer")}
}

// Fetch blocks until a decodable job arrives. Undecodable messages are
// committed and skipped.
func (c *Consumer) Fetch(ctx context.Context) (job.Delivery, error) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return job.Delivery{}, err
		}

		j, err := job.Unmarshal(m.Value)
		if err != nil {
			c.logger.Error("skipping malformed job",
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				return job.Delivery{}, err
			}
			continue
		}

		return job.Delivery{
			Job: j,
			Ack: func(ctx context.Context) error {
				return c.reader.CommitMessages(ctx, m)
			},
		}, nil
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
