package job

import "context"

// Delivery is a job handed out by a queue consumer. Ack must be called once
// the job is done with, successfully or not; unacked deliveries are redelivered.
type Delivery struct {
	Job Job
	Ack func(ctx context.Context) error
}
