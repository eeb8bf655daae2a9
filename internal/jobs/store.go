package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Enqueuer is the write side used by job planners.
type Enqueuer interface {
	// Enqueue stores job unless a job with the same key exists. It reports
	// whether a new row was created.
	Enqueue(ctx context.Context, job Job) (bool, error)
}

type Store interface {
	Enqueuer

	// ClaimDue moves up to limit due jobs to running and leases them until
	// now+lease. Running jobs whose lease expired are due again.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Job, error)
	Complete(ctx context.Context, id uuid.UUID, at time.Time) error
	Retry(ctx context.Context, id uuid.UUID, at, next time.Time, reason string) error
	Fail(ctx context.Context, id uuid.UUID, at time.Time, reason string) error
	GetByKey(ctx context.Context, key string) (*Job, error)
}
