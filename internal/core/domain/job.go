package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobType identifies one pipeline stage.
type JobType string

const (
	JobTypeChunk  JobType = "chunk"
	JobTypeEmbed  JobType = "embed"
	JobTypeEnrich JobType = "enrich"
)

// StageOrder is the strict pipeline priority: chunking precedes embedding,
// which precedes enrichment. Each stage's input is the previous stage's output.
var StageOrder = []JobType{JobTypeChunk, JobTypeEmbed, JobTypeEnrich}

// ParseJobType validates a stage name from the wire.
func ParseJobType(s string) (JobType, error) {
	switch JobType(s) {
	case JobTypeChunk, JobTypeEmbed, JobTypeEnrich:
		return JobType(s), nil
	}
	return "", ErrUnknownStage
}

// JobStatus represents the stored state of a pipeline job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// MaxJobAttempts caps retries per document/stage.
const MaxJobAttempts = 5

// PipelineJob is one unit of per-document, per-stage work. A job whose lease
// has expired while still processing counts as backlog again without a
// distinct status; lease expiry is the only crash-recovery path.
type PipelineJob struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Type       JobType `json:"job_type"`

	Status      JobStatus `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Error       string    `json:"error,omitempty"`

	// NextRunAt gates retries with backoff.
	NextRunAt time.Time `json:"next_run_at"`

	// LeaseExpiresAt is set when a worker claims the job.
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPipelineJob creates a pending job for a document entering a stage.
func NewPipelineJob(documentID string, jobType JobType) *PipelineJob {
	now := time.Now()
	return &PipelineJob{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		Type:        jobType,
		Status:      JobStatusPending,
		MaxAttempts: MaxJobAttempts,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsReady reports whether the job is eligible work: pending or failed with
// retries left and its backoff window elapsed.
func (j *PipelineJob) IsReady(now time.Time) bool {
	if j.Status != JobStatusPending && j.Status != JobStatusFailed {
		return false
	}
	return j.Attempts < j.MaxAttempts && !j.NextRunAt.After(now)
}

// IsStale reports whether the job's worker crashed or timed out: still
// processing but its lease has lapsed.
func (j *PipelineJob) IsStale(now time.Time) bool {
	return j.Status == JobStatusProcessing &&
		j.LeaseExpiresAt != nil &&
		j.LeaseExpiresAt.Before(now)
}

// MarkProcessing records a worker's claim with a lease.
func (j *PipelineJob) MarkProcessing(leaseTTL time.Duration) {
	now := time.Now()
	lease := now.Add(leaseTTL)
	j.Status = JobStatusProcessing
	j.Attempts++
	j.LeaseExpiresAt = &lease
	j.UpdatedAt = now
}

// MarkDone records successful completion.
func (j *PipelineJob) MarkDone() {
	j.Status = JobStatusDone
	j.Error = ""
	j.LeaseExpiresAt = nil
	j.UpdatedAt = time.Now()
}

// MarkFailed records a failure and schedules the retry window.
func (j *PipelineJob) MarkFailed(errMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = errMsg
	j.LeaseExpiresAt = nil
	j.NextRunAt = now.Add(RetryBackoff(j.Attempts))
	j.UpdatedAt = now
}

// RetryBackoff returns the exponential retry delay after the given number of
// attempts: 2s, 4s, 8s... capped at 5 minutes.
func RetryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Duration(1<<attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	return backoff
}

// StageBacklog is the per-stage count of eligible work: ready jobs plus
// stale (lease-expired) ones.
type StageBacklog struct {
	Ready int64 `json:"ready"`
	Stale int64 `json:"stale"`
}

// Total returns the backlog size the orchestrator schedules on.
func (b StageBacklog) Total() int64 {
	return b.Ready + b.Stale
}
