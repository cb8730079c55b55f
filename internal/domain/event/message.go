package event

import (
	"encoding/json"
	"time"

	"taskstream/internal/domain/record"
	"taskstream/internal/domain/summary"
	"taskstream/internal/domain/transaction"
)

type Kind string

const (
	TxCreated       Kind = "tx_created"
	TxStatusUpdated Kind = "tx_status_updated"
	SummaryCreated  Kind = "summary_created"
	SummaryUpdated  Kind = "summary_updated"
)

// Event is the flat message broadcast to observers. It is never persisted;
// consumers must tolerate fields they do not know.
type Event struct {
	Kind           Kind          `json:"event"`
	ID             string        `json:"id"`
	Status         record.Status `json:"status"`
	UserID         string        `json:"user_id,omitempty"`
	Amount         *float64      `json:"amount,omitempty"`
	TxKind         string        `json:"kind,omitempty"`
	Source         string        `json:"source,omitempty"`
	Preview        *string       `json:"preview,omitempty"`
	Error          string        `json:"error,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      *time.Time    `json:"created_at,omitempty"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func Decode(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}

func TransactionCreated(t transaction.Transaction) Event {
	amount := t.Amount
	created := t.CreatedAt.UTC()
	return Event{
		Kind:           TxCreated,
		ID:             t.ID,
		Status:         t.Status,
		UserID:         t.UserID,
		Amount:         &amount,
		TxKind:         t.Kind,
		IdempotencyKey: t.IdempotencyKey,
		CreatedAt:      &created,
	}
}

func TransactionUpdated(t transaction.Transaction) Event {
	return Event{
		Kind:   TxStatusUpdated,
		ID:     t.ID,
		Status: t.Status,
		UserID: t.UserID,
	}
}

func SummaryCreatedEvent(s summary.Summary) Event {
	created := s.CreatedAt.UTC()
	return Event{
		Kind:           SummaryCreated,
		ID:             s.ID,
		Status:         s.Status,
		Source:         s.Source,
		IdempotencyKey: s.IdempotencyKey,
		CreatedAt:      &created,
	}
}

// SummaryUpdatedEvent carries a preview of at most previewLen runes of the result.
func SummaryUpdatedEvent(s summary.Summary, previewLen int) Event {
	result := ""
	if s.Result != nil {
		result = *s.Result
	}
	preview := summary.Preview(result, previewLen)
	ev := Event{
		Kind:    SummaryUpdated,
		ID:      s.ID,
		Status:  s.Status,
		Source:  s.Source,
		Preview: &preview,
	}
	if s.Error != nil {
		ev.Error = *s.Error
	}
	return ev
}
