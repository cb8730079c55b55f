package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskstream/internal/domain/event"
	"taskstream/internal/domain/job"
	"taskstream/internal/domain/record"
	"taskstream/internal/domain/summary"
	"taskstream/internal/idempotency"

	"github.com/google/uuid"
)

type CreateSummary struct {
	resolver  *idempotency.Resolver[summary.Summary]
	publisher EventPublisher
	queue     Enqueuer
	logger    *slog.Logger
	now       func() time.Time
}

func NewCreateSummary(
	repo record.Repository[summary.Summary],
	publisher EventPublisher,
	queue Enqueuer,
	logger *slog.Logger,
) *CreateSummary {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateSummary{
		resolver:  idempotency.NewResolver(repo, logger),
		publisher: publisher,
		queue:     queue,
		logger:    logger.With("component", "create_summary"),
		now:       time.Now,
	}
}

type CreateSummaryParams struct {
	Payload        summary.Payload
	IdempotencyKey string
	ForceFail      bool
}

func (uc *CreateSummary) Execute(ctx context.Context, params CreateSummaryParams) (summary.Summary, bool, error) {
	p := params.Payload.Normalize()
	p.Source = strings.TrimSpace(p.Source)

	key := idempotency.SelectKey(params.IdempotencyKey, p.IdempotencyKey, func() string {
		return summary.FallbackKey(p)
	})

	s, created, err := uc.resolver.Resolve(ctx, key, func(key string) summary.Summary {
		now := uc.now().UTC()
		return summary.Summary{
			ID:             uuid.New().String(),
			Source:         p.Source,
			Text:           p.Text,
			Status:         record.StatusPending,
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
			Queued:         true,
			ForceFail:      params.ForceFail,
		}
	})
	if err != nil {
		return summary.Summary{}, false, fmt.Errorf("create summary: %w", err)
	}

	if !created {
		uc.logger.Info("idempotent replay", "id", s.ID, "status", s.Status)
		return s, false, nil
	}

	uc.logger.Info("summary created", "id", s.ID, "source", s.Source)
	uc.publisher.Publish(ctx, event.SummaryCreatedEvent(s))
	enqueue(ctx, uc.queue, job.Job{
		Kind:       job.SummarizeText,
		RecordID:   s.ID,
		ForceFail:  params.ForceFail,
		EnqueuedAt: uc.now().UTC(),
	}, uc.logger)
	return s, true, nil
}
