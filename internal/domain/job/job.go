package job

import (
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	ProcessTransaction Kind = "process_transaction"
	SummarizeText      Kind = "summarize_text"
)

// Job is the unit handed to the queue. The queue delivers at least once.
type Job struct {
	Kind       Kind      `json:"kind"`
	RecordID   string    `json:"record_id"`
	ForceFail  bool      `json:"force_fail"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (j Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

func Unmarshal(b []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	if j.Kind == "" || j.RecordID == "" {
		return Job{}, fmt.Errorf("unmarshal job: missing kind or record_id")
	}
	return j, nil
}
