package summary

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"taskstream/internal/domain/record"
)

const (
	DefaultSource = "manual"

	// ErrForcedFailure is the canonical error stored when a job is run with the failure flag.
	ErrForcedFailure = "forced_failure"
)

type Summary struct {
	ID             string        `json:"id"`
	Source         string        `json:"source"`
	Text           string        `json:"text"`
	Status         record.Status `json:"status"`
	Result         *string       `json:"result"`
	Error          *string       `json:"error"`
	IdempotencyKey string        `json:"idempotency_key"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	Queued    bool `json:"-"`
	ForceFail bool `json:"-"`
}

func (s Summary) RecordID() string     { return s.ID }
func (s Summary) Key() string          { return s.IdempotencyKey }
func (s Summary) State() record.Status { return s.Status }
func (s Summary) Created() time.Time   { return s.CreatedAt }

func (s Summary) Dispatch() record.Dispatch {
	return record.Dispatch{Queued: s.Queued, ForceFail: s.ForceFail}
}

type Payload struct {
	Source         string `json:"source"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Normalize fills the default source.
func (p Payload) Normalize() Payload {
	if strings.TrimSpace(p.Source) == "" {
		p.Source = DefaultSource
	}
	return p
}

// FallbackKey is sha256 hex of "source|text" for a normalized payload.
func FallbackKey(p Payload) string {
	p = p.Normalize()
	sum := sha256.Sum256([]byte(p.Source + "|" + p.Text))
	return hex.EncodeToString(sum[:])
}
