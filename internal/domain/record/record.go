package record

import (
	"errors"
	"time"
)

// Status is the lifecycle state shared by every asynchronously processed record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("idempotency key already used")
)

// Dispatch is the job intent recorded at creation. A record created without
// a job has Queued unset and is never picked up by a pending sweep.
type Dispatch struct {
	Queued    bool
	ForceFail bool
}

// Entity is implemented by every record type the core stores and processes.
type Entity interface {
	RecordID() string
	Key() string
	State() Status
	Created() time.Time
	Dispatch() Dispatch
}
