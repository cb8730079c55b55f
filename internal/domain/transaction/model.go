package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"taskstream/internal/domain/record"
)

type Transaction struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	Amount         float64       `json:"amount"`
	Kind           string        `json:"kind"`
	Status         record.Status `json:"status"`
	IdempotencyKey string        `json:"idempotency_key"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// Queued and ForceFail record the job requested at creation.
	Queued    bool `json:"-"`
	ForceFail bool `json:"-"`
}

func (t Transaction) RecordID() string     { return t.ID }
func (t Transaction) Key() string          { return t.IdempotencyKey }
func (t Transaction) State() record.Status { return t.Status }
func (t Transaction) Created() time.Time   { return t.CreatedAt }

func (t Transaction) Dispatch() record.Dispatch {
	return record.Dispatch{Queued: t.Queued, ForceFail: t.ForceFail}
}

// Payload is the caller-supplied part of a transaction.
type Payload struct {
	UserID         string  `json:"user_id"`
	Amount         float64 `json:"amount"`
	Kind           string  `json:"kind"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// FallbackKey derives the idempotency key used when the caller supplies none:
// sha256 hex of "user_id|amount|kind".
func FallbackKey(p Payload) string {
	raw := strings.Join([]string{
		p.UserID,
		formatAmount(p.Amount),
		p.Kind,
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// formatAmount renders v as the shortest round-trip decimal, fixed notation
// with at least one fractional digit for decimal exponents in [-4, 16) and
// scientific notation otherwise: 5 -> "5.0", 1e16 -> "1e+16".
func formatAmount(v float64) string {
	sci := strconv.FormatFloat(v, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.LastIndexByte(sci, 'e')+1:])
	if err != nil || exp < -4 || exp >= 16 {
		return sci
	}
	fixed := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return fixed
}
