package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"taskstream/internal/domain/event"
	"taskstream/internal/domain/job"
	"taskstream/internal/domain/record"
	"taskstream/internal/domain/transaction"
	"taskstream/internal/idempotency"

	"github.com/google/uuid"
)

type CreateTransaction struct {
	resolver  *idempotency.Resolver[transaction.Transaction]
	publisher EventPublisher
	queue     Enqueuer
	logger    *slog.Logger
	now       func() time.Time
}

func NewCreateTransaction(
	repo record.Repository[transaction.Transaction],
	publisher EventPublisher,
	queue Enqueuer,
	logger *slog.Logger,
) *CreateTransaction {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateTransaction{
		resolver:  idempotency.NewResolver(repo, logger),
		publisher: publisher,
		queue:     queue,
		logger:    logger.With("component", "create_transaction"),
		now:       time.Now,
	}
}

type CreateTransactionParams struct {
	Payload transaction.Payload
	// IdempotencyKey is the explicit key from the request header.
	IdempotencyKey string
	// Async publishes tx_created and enqueues the processing job on creation.
	Async     bool
	ForceFail bool
}

// Execute returns the transaction for the request's idempotency key and
// whether this call created it. Events and jobs are emitted only on creation.
func (uc *CreateTransaction) Execute(ctx context.Context, params CreateTransactionParams) (transaction.Transaction, bool, error) {
	p := params.Payload
	p.UserID = strings.TrimSpace(p.UserID)
	p.Kind = strings.TrimSpace(p.Kind)
	if p.UserID == "" || p.Kind == "" {
		return transaction.Transaction{}, false, fmt.Errorf("%w: user_id and kind are required", ErrInvalidInput)
	}
	if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
		return transaction.Transaction{}, false, fmt.Errorf("%w: amount must be finite", ErrInvalidInput)
	}

	key := idempotency.SelectKey(params.IdempotencyKey, p.IdempotencyKey, func() string {
		return transaction.FallbackKey(p)
	})

	tx, created, err := uc.resolver.Resolve(ctx, key, func(key string) transaction.Transaction {
		now := uc.now().UTC()
		return transaction.Transaction{
			ID:             uuid.New().String(),
			UserID:         p.UserID,
			Amount:         p.Amount,
			Kind:           p.Kind,
			Status:         record.StatusPending,
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
			Queued:         params.Async,
			ForceFail:      params.Async && params.ForceFail,
		}
	})
	if err != nil {
		return transaction.Transaction{}, false, fmt.Errorf("create transaction: %w", err)
	}

	if !created {
		uc.logger.Info("idempotent replay", "id", tx.ID, "status", tx.Status)
		return tx, false, nil
	}

	uc.logger.Info("transaction created", "id", tx.ID, "async", params.Async)
	if params.Async {
		uc.publisher.Publish(ctx, event.TransactionCreated(tx))
		enqueue(ctx, uc.queue, job.Job{
			Kind:       job.ProcessTransaction,
			RecordID:   tx.ID,
			ForceFail:  params.ForceFail,
			EnqueuedAt: uc.now().UTC(),
		}, uc.logger)
	}
	return tx, true, nil
}
