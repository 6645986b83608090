package driven

import (
	"context"
	"time"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
)

// JobStore is the single shared mutable resource of the pipeline: the
// per-document, per-stage job queue. The claim operation is the atomicity
// contract: two concurrent workers must never claim the same job, and a
// processing job whose lease has expired is claimable again (crash recovery).
type JobStore interface {
	// Enqueue adds a pending job. Enqueueing a stage a document already has
	// a live (pending/processing) job for returns domain.ErrAlreadyExists.
	Enqueue(ctx context.Context, job *domain.PipelineJob) error

	// Claim atomically transitions up to limit eligible jobs of the given
	// stage to processing, setting lease_expires_at = now + leaseTTL and
	// incrementing attempts. Eligible means ready (pending/failed, attempts
	// under the cap, next_run_at elapsed) or stale (processing with an
	// expired lease).
	Claim(ctx context.Context, stage domain.JobType, limit int, leaseTTL time.Duration) ([]*domain.PipelineJob, error)

	// Complete marks a claimed job done.
	Complete(ctx context.Context, jobID string) error

	// Fail marks a claimed job failed, records the reason and schedules
	// next_run_at with the given backoff.
	Fail(ctx context.Context, jobID string, reason string, backoff time.Duration) error

	// Backlog counts ready and stale jobs for one stage. The orchestrator
	// schedules purely on these read-only counts.
	Backlog(ctx context.Context, stage domain.JobType) (domain.StageBacklog, error)

	// Get retrieves a job by ID.
	Get(ctx context.Context, jobID string) (*domain.PipelineJob, error)

	// List retrieves jobs matching the filter.
	List(ctx context.Context, filter JobFilter) ([]*domain.PipelineJob, error)

	// Purge removes done/failed jobs older than the cutoff and returns the
	// number removed.
	Purge(ctx context.Context, olderThan time.Duration) (int, error)

	// Ping checks queue backend health.
	Ping(ctx context.Context) error
}

// JobFilter narrows List results.
type JobFilter struct {
	DocumentID string
	Type       domain.JobType
	Status     domain.JobStatus
	Limit      int
	Offset     int
}
