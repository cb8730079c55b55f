package event

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskstream/internal/domain/record"
	"taskstream/internal/domain/summary"
	"taskstream/internal/domain/transaction"
)

var createdAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestEncode_Golden(t *testing.T) {
	tx := transaction.Transaction{
		ID:             "tx-1",
		UserID:         "u-1",
		Amount:         100.5,
		Kind:           "deposit",
		Status:         record.StatusPending,
		IdempotencyKey: "key-1",
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	processedTx := tx
	processedTx.Status = record.StatusProcessed

	sum := summary.Summary{
		ID:             "sum-1",
		Source:         "manual",
		Text:           "hello   world",
		Status:         record.StatusPending,
		IdempotencyKey: "key-2",
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	processedSum := sum
	processedSum.Status = record.StatusProcessed
	processedSum.Result = strPtr("hello world")

	failedSum := sum
	failedSum.Status = record.StatusFailed
	failedSum.Error = strPtr(summary.ErrForcedFailure)

	tests := []struct {
		name string
		ev   Event
	}{
		{name: "tx_created", ev: TransactionCreated(tx)},
		{name: "tx_status_updated", ev: TransactionUpdated(processedTx)},
		{name: "summary_created", ev: SummaryCreatedEvent(sum)},
		{name: "summary_updated_processed", ev: SummaryUpdatedEvent(processedSum, summary.DefaultPreviewLen)},
		{name: "summary_updated_failed", ev: SummaryUpdatedEvent(failedSum, summary.DefaultPreviewLen)},
	}

	g := goldie.New(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.ev.Encode()
			require.NoError(t, err)
			g.Assert(t, tt.name, b)
		})
	}
}

func TestDecode_RoundTripsKnownFields(t *testing.T) {
	b, err := TransactionCreated(transaction.Transaction{
		ID:        "tx-1",
		UserID:    "u-1",
		Amount:    0,
		Kind:      "deposit",
		Status:    record.StatusPending,
		CreatedAt: createdAt,
	}).Encode()
	require.NoError(t, err)

	ev, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, TxCreated, ev.Kind)
	require.NotNil(t, ev.Amount)
	assert.Zero(t, *ev.Amount)
	assert.Equal(t, createdAt, ev.CreatedAt.UTC())
}

func TestDecode_ToleratesUnknownFields(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"tx_status_updated","id":"tx-1","status":"failed","extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, TxStatusUpdated, ev.Kind)
	assert.Equal(t, record.StatusFailed, ev.Status)
}

func TestSummaryUpdatedEvent_TruncatesPreview(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "word "
	}
	ev := SummaryUpdatedEvent(summary.Summary{ID: "s", Status: record.StatusProcessed, Result: &long}, 120)
	require.NotNil(t, ev.Preview)
	assert.Len(t, []rune(*ev.Preview), 120)
}
