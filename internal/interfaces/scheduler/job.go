package scheduler

import "context"

// Job is a unit of work executed by the worker pool.
type Job interface {
	// Execute runs the job. The context carries the per-job timeout and is
	// cancelled on forced shutdown.
	Execute(ctx context.Context) error

	// UserID is the owner of the data the job touches. Used for logging.
	UserID() int64

	Description() string
}
