package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskstream/internal/domain/event"
	"taskstream/internal/domain/record"
	"taskstream/internal/domain/summary"
	"taskstream/internal/domain/transaction"
)

const (
	ErrTransactionNotFound = "transaction_not_found"
	ErrSummaryNotFound     = "summary_not_found"
)

// transition loads the record under lock and, unless it is already
// terminal, applies apply and persists the result in the same transaction.
// The returned record is the committed state.
func transition[T record.Entity](
	ctx context.Context,
	tx record.Transactor,
	repo record.Repository[T],
	id string,
	apply func(T) T,
) (item T, redelivered bool, err error) {
	err = tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		current, err := repo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if current.State().Terminal() {
			item, redelivered = current, true
			return nil
		}
		next := apply(current)
		if err := repo.Update(txCtx, next); err != nil {
			return fmt.Errorf("persist %s: %w", id, err)
		}
		item = next
		return nil
	})
	return item, redelivered, err
}

type TransactionHandler struct {
	tx        record.Transactor
	repo      record.Repository[transaction.Transaction]
	publisher EventPublisher
	delay     time.Duration
	now       func() time.Time
}

func NewTransactionHandler(tx record.Transactor, repo record.Repository[transaction.Transaction], publisher EventPublisher, delay time.Duration) *TransactionHandler {
	return &TransactionHandler{
		tx:        tx,
		repo:      repo,
		publisher: publisher,
		delay:     delay,
		now:       time.Now,
	}
}

func (h *TransactionHandler) Handle(ctx context.Context, id string, forceFail bool) (Outcome, error) {
	current, err := h.repo.GetByID(ctx, id)
	if errors.Is(err, record.ErrNotFound) {
		return Outcome{OK: false, ID: id, Error: ErrTransactionNotFound}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load %s: %w", id, err)
	}
	// Redelivered jobs skip the simulated work.
	if current.Status.Terminal() {
		h.publisher.Publish(ctx, event.TransactionUpdated(current))
		return Outcome{OK: true, ID: current.ID, Status: current.Status, Redelivered: true}, nil
	}

	if err := simulateWork(ctx, h.delay); err != nil {
		return Outcome{}, err
	}

	t, redelivered, err := transition(ctx, h.tx, h.repo, id, func(t transaction.Transaction) transaction.Transaction {
		t.Status = record.StatusProcessed
		if forceFail {
			t.Status = record.StatusFailed
		}
		t.UpdatedAt = h.now().UTC()
		return t
	})
	if errors.Is(err, record.ErrNotFound) {
		return Outcome{OK: false, ID: id, Error: ErrTransactionNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	h.publisher.Publish(ctx, event.TransactionUpdated(t))
	return Outcome{OK: true, ID: t.ID, Status: t.Status, Redelivered: redelivered}, nil
}

type SummaryHandler struct {
	tx         record.Transactor
	repo       record.Repository[summary.Summary]
	publisher  EventPublisher
	delay      time.Duration
	maxWords   int
	previewLen int
	now        func() time.Time
}

func NewSummaryHandler(tx record.Transactor, repo record.Repository[summary.Summary], publisher EventPublisher, delay time.Duration, maxWords, previewLen int) *SummaryHandler {
	if maxWords <= 0 {
		maxWords = summary.DefaultMaxWords
	}
	if previewLen <= 0 {
		previewLen = summary.DefaultPreviewLen
	}
	return &SummaryHandler{
		tx:         tx,
		repo:       repo,
		publisher:  publisher,
		delay:      delay,
		maxWords:   maxWords,
		previewLen: previewLen,
		now:        time.Now,
	}
}

func (h *SummaryHandler) Handle(ctx context.Context, id string, forceFail bool) (Outcome, error) {
	current, err := h.repo.GetByID(ctx, id)
	if errors.Is(err, record.ErrNotFound) {
		return Outcome{OK: false, ID: id, Error: ErrSummaryNotFound}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load %s: %w", id, err)
	}
	if current.Status.Terminal() {
		h.publisher.Publish(ctx, event.SummaryUpdatedEvent(current, h.previewLen))
		return Outcome{OK: true, ID: current.ID, Status: current.Status, Redelivered: true}, nil
	}

	if err := simulateWork(ctx, h.delay); err != nil {
		return Outcome{}, err
	}

	s, redelivered, err := transition(ctx, h.tx, h.repo, id, func(s summary.Summary) summary.Summary {
		if forceFail {
			reason := summary.ErrForcedFailure
			s.Status = record.StatusFailed
			s.Error = &reason
			s.Result = nil
		} else {
			result := summary.Summarize(s.Text, h.maxWords)
			s.Status = record.StatusProcessed
			s.Result = &result
			s.Error = nil
		}
		s.UpdatedAt = h.now().UTC()
		return s
	})
	if errors.Is(err, record.ErrNotFound) {
		return Outcome{OK: false, ID: id, Error: ErrSummaryNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	h.publisher.Publish(ctx, event.SummaryUpdatedEvent(s, h.previewLen))
	return Outcome{OK: true, ID: s.ID, Status: s.Status, Redelivered: redelivered}, nil
}
