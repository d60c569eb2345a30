package scheduler

import "context"

// Job is a unit of background work processed by the worker pool.
type Job interface {
	// Execute runs the job. The context carries the pool's cancellation
	// and a per-job timeout.
	Execute(ctx context.Context) error

	// Key identifies the entity the job works on, for logging.
	Key() string

	// Description returns a human-readable description of the job.
	Description() string
}
