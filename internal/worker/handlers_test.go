package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskstream/internal/domain/event"
	"taskstream/internal/domain/job"
	"taskstream/internal/domain/record"
	"taskstream/internal/domain/summary"
	"taskstream/internal/domain/transaction"
	"taskstream/internal/infrastructure/memory"
)

// recordingPublisher captures events, plus the stored status seen at
// publish time when lookup is set.
type recordingPublisher struct {
	mu       sync.Mutex
	events   []event.Event
	lookup   func(id string) record.Status
	observed []record.Status
}

func (p *recordingPublisher) Publish(_ context.Context, ev event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	if p.lookup != nil {
		p.observed = append(p.observed, p.lookup(ev.ID))
	}
}

func (p *recordingPublisher) Events() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.events...)
}

var created = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTxFixture(t *testing.T) (*memory.Store[transaction.Transaction], *recordingPublisher, *Executor) {
	t.Helper()
	store := memory.NewStore(transaction.Transaction{
		ID: "tx-1", UserID: "u-1", Amount: 10, Kind: "deposit",
		Status: record.StatusPending, IdempotencyKey: "k-1", CreatedAt: created, UpdatedAt: created,
	})
	pub := &recordingPublisher{}
	pub.lookup = func(id string) record.Status {
		got, err := store.GetByID(context.Background(), id)
		if err != nil {
			return ""
		}
		return got.Status
	}
	exec := NewExecutor(nil).Register(job.ProcessTransaction, NewTransactionHandler(store, store, pub, 0))
	return store, pub, exec
}

func TestTransactionHandler_Processes(t *testing.T) {
	store, pub, exec := newTxFixture(t)

	out, err := exec.Execute(context.Background(), job.Job{Kind: job.ProcessTransaction, RecordID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, Outcome{OK: true, ID: "tx-1", Status: record.StatusProcessed}, out)

	got, err := store.GetByID(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, record.StatusProcessed, got.Status)
	assert.True(t, got.UpdatedAt.After(created))

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.TxStatusUpdated, events[0].Kind)
	assert.Equal(t, record.StatusProcessed, events[0].Status)
	assert.Equal(t, "u-1", events[0].UserID)
	assert.Equal(t, []record.Status{record.StatusProcessed}, pub.observed, "state must be committed before the event")
}

func TestTransactionHandler_ForcedFailure(t *testing.T) {
	_, pub, exec := newTxFixture(t)

	out, err := exec.Execute(context.Background(), job.Job{Kind: job.ProcessTransaction, RecordID: "tx-1", ForceFail: true})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, record.StatusFailed, out.Status)
	require.Len(t, pub.Events(), 1)
	assert.Equal(t, record.StatusFailed, pub.Events()[0].Status)
}

func TestTransactionHandler_NotFound(t *testing.T) {
	_, pub, exec := newTxFixture(t)

	out, err := exec.Execute(context.Background(), job.Job{Kind: job.ProcessTransaction, RecordID: "missing"})
	require.NoError(t, err)
	assert.Equal(t, Outcome{OK: false, ID: "missing", Error: ErrTransactionNotFound}, out)
	assert.Empty(t, pub.Events())
}

func TestTransactionHandler_TerminalIsNotRewritten(t *testing.T) {
	store, pub, exec := newTxFixture(t)
	ctx := context.Background()

	_, err := exec.Execute(ctx, job.Job{Kind: job.ProcessTransaction, RecordID: "tx-1", ForceFail: true})
	require.NoError(t, err)
	before, err := store.GetByID(ctx, "tx-1")
	require.NoError(t, err)

	out, err := exec.Execute(ctx, job.Job{Kind: job.ProcessTransaction, RecordID: "tx-1"})
	require.NoError(t, err)
	assert.True(t, out.Redelivered)
	assert.Equal(t, record.StatusFailed, out.Status)

	after, err := store.GetByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, record.StatusFailed, events[1].Status)
}

func TestHandlers_SettledRecordsSkipSimulatedWork(t *testing.T) {
	ctx := context.Background()
	txs := memory.NewStore(transaction.Transaction{ID: "tx-1", IdempotencyKey: "k", Status: record.StatusProcessed})
	sums := memory.NewStore(summary.Summary{ID: "sum-1", IdempotencyKey: "k", Status: record.StatusFailed})
	pub := &recordingPublisher{}
	txHandler := NewTransactionHandler(txs, txs, pub, time.Hour)
	sumHandler := NewSummaryHandler(sums, sums, pub, time.Hour, 0, 0)

	start := time.Now()

	out, err := txHandler.Handle(ctx, "tx-1", true)
	require.NoError(t, err)
	assert.Equal(t, Outcome{OK: true, ID: "tx-1", Status: record.StatusProcessed, Redelivered: true}, out)

	out, err = sumHandler.Handle(ctx, "sum-1", false)
	require.NoError(t, err)
	assert.Equal(t, Outcome{OK: true, ID: "sum-1", Status: record.StatusFailed, Redelivered: true}, out)

	out, err = txHandler.Handle(ctx, "missing", false)
	require.NoError(t, err)
	assert.Equal(t, ErrTransactionNotFound, out.Error)

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, pub.Events(), 2)
}

func TestTransactionHandler_CancelledDuringWork(t *testing.T) {
	store := memory.NewStore(transaction.Transaction{ID: "tx-1", IdempotencyKey: "k", Status: record.StatusPending})
	pub := &recordingPublisher{}
	h := NewTransactionHandler(store, store, pub, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Handle(ctx, "tx-1", false)
	assert.ErrorIs(t, err, context.Canceled)

	got, _ := store.GetByID(context.Background(), "tx-1")
	assert.Equal(t, record.StatusPending, got.Status)
	assert.Empty(t, pub.Events())
}

func newSummaryFixture(text string) (*memory.Store[summary.Summary], *recordingPublisher, *Executor) {
	store := memory.NewStore(summary.Summary{
		ID: "sum-1", Source: "manual", Text: text,
		Status: record.StatusPending, IdempotencyKey: "k-1", CreatedAt: created, UpdatedAt: created,
	})
	pub := &recordingPublisher{}
	exec := NewExecutor(nil).Register(job.SummarizeText, NewSummaryHandler(store, store, pub, 0, 3, 8))
	return store, pub, exec
}

func TestSummaryHandler_Processes(t *testing.T) {
	store, pub, exec := newSummaryFixture("one two three four")

	out, err := exec.Execute(context.Background(), job.Job{Kind: job.SummarizeText, RecordID: "sum-1"})
	require.NoError(t, err)
	assert.Equal(t, record.StatusProcessed, out.Status)

	got, err := store.GetByID(context.Background(), "sum-1")
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, "one two three ...", *got.Result)
	assert.Nil(t, got.Error)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.SummaryUpdated, events[0].Kind)
	require.NotNil(t, events[0].Preview)
	assert.Equal(t, "one two ", *events[0].Preview)
}

func TestSummaryHandler_ForcedFailure(t *testing.T) {
	store, pub, exec := newSummaryFixture("")

	out, err := exec.Execute(context.Background(), job.Job{Kind: job.SummarizeText, RecordID: "sum-1", ForceFail: true})
	require.NoError(t, err)
	assert.Equal(t, record.StatusFailed, out.Status)

	got, err := store.GetByID(context.Background(), "sum-1")
	require.NoError(t, err)
	assert.Nil(t, got.Result)
	require.NotNil(t, got.Error)
	assert.Equal(t, summary.ErrForcedFailure, *got.Error)

	events := pub.Events()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Preview)
	assert.Equal(t, "", *events[0].Preview)
	assert.Equal(t, summary.ErrForcedFailure, events[0].Error)
}

func TestSummaryHandler_EmptyText(t *testing.T) {
	store, _, exec := newSummaryFixture("   ")

	_, err := exec.Execute(context.Background(), job.Job{Kind: job.SummarizeText, RecordID: "sum-1"})
	require.NoError(t, err)

	got, err := store.GetByID(context.Background(), "sum-1")
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, "", *got.Result)
	assert.Equal(t, record.StatusProcessed, got.Status)
}

func TestSummaryHandler_NotFound(t *testing.T) {
	_, pub, exec := newSummaryFixture("x")

	out, err := exec.Execute(context.Background(), job.Job{Kind: job.SummarizeText, RecordID: "nope"})
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, ErrSummaryNotFound, out.Error)
	assert.Empty(t, pub.Events())
}

func TestExecutor_UnknownKind(t *testing.T) {
	_, err := NewExecutor(nil).Execute(context.Background(), job.Job{Kind: "resize_image", RecordID: "1"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
