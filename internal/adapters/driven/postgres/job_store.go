package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.JobStore = (*JobStore)(nil)

// JobStore implements driven.JobStore on PostgreSQL. Claiming uses
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never hand the
// same job to two processes, and leases make crashed workers' jobs
// reclaimable without any recovery daemon.
type JobStore struct {
	db *DB
}

// NewJobStore creates a new JobStore
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, document_id, job_type, status, attempts, max_attempts, error, next_run_at, lease_expires_at, created_at, updated_at`

// Enqueue adds a pending job. A live (pending or processing) job for the
// same document and stage already existing maps to domain.ErrAlreadyExists.
func (s *JobStore) Enqueue(ctx context.Context, job *domain.PipelineJob) error {
	query := `
		INSERT INTO pipeline_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.DocumentID,
		string(job.Type),
		string(job.Status),
		job.Attempts,
		job.MaxAttempts,
		job.Error,
		job.NextRunAt,
		NullTime(job.LeaseExpiresAt),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Claim atomically selects up to limit ready or lease-expired jobs for a
// stage, marks them processing with a fresh lease, and returns them.
func (s *JobStore) Claim(ctx context.Context, stage domain.JobType, limit int, leaseTTL time.Duration) ([]*domain.PipelineJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []*domain.PipelineJob

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		selectQuery := `
			SELECT ` + jobColumns + `
			FROM pipeline_jobs
			WHERE job_type = $1
			  AND (
			    (status IN ('pending', 'failed') AND attempts < max_attempts AND next_run_at <= NOW())
			    OR (status = 'processing' AND lease_expires_at IS NOT NULL AND lease_expires_at < NOW())
			  )
			ORDER BY next_run_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`

		rows, err := tx.QueryContext(ctx, selectQuery, string(stage), limit)
		if err != nil {
			return fmt.Errorf("select jobs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			claimed = append(claimed, job)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now().UTC()
		lease := now.Add(leaseTTL)

		updateQuery := `
			UPDATE pipeline_jobs
			SET status = 'processing', attempts = attempts + 1, lease_expires_at = $1, updated_at = $2
			WHERE id = $3
		`
		for _, job := range claimed {
			if _, err := tx.ExecContext(ctx, updateQuery, lease, now, job.ID); err != nil {
				return fmt.Errorf("lease job %s: %w", job.ID, err)
			}
			job.Status = domain.JobStatusProcessing
			job.Attempts++
			job.LeaseExpiresAt = &lease
			job.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// Complete marks a job done and clears its lease
func (s *JobStore) Complete(ctx context.Context, jobID string) error {
	query := `
		UPDATE pipeline_jobs
		SET status = 'done', error = '', lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return s.exec(ctx, query, jobID)
}

// Fail records a failure and schedules the retry after the given backoff
func (s *JobStore) Fail(ctx context.Context, jobID string, reason string, backoff time.Duration) error {
	query := `
		UPDATE pipeline_jobs
		SET status = 'failed', error = $1, next_run_at = NOW() + $2 * INTERVAL '1 second', lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, reason, int64(backoff.Seconds()), jobID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return requireRow(result)
}

// Backlog counts a stage's ready jobs and its stale leases
func (s *JobStore) Backlog(ctx context.Context, stage domain.JobType) (domain.StageBacklog, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('pending', 'failed') AND attempts < max_attempts AND next_run_at <= NOW()),
			COUNT(*) FILTER (WHERE status = 'processing' AND lease_expires_at IS NOT NULL AND lease_expires_at < NOW())
		FROM pipeline_jobs
		WHERE job_type = $1
	`

	var backlog domain.StageBacklog
	err := s.db.QueryRowContext(ctx, query, string(stage)).Scan(&backlog.Ready, &backlog.Stale)
	if err != nil {
		return domain.StageBacklog{}, fmt.Errorf("count backlog: %w", err)
	}
	return backlog, nil
}

// Get retrieves a job by ID
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.PipelineJob, error) {
	query := `SELECT ` + jobColumns + ` FROM pipeline_jobs WHERE id = $1`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// List retrieves jobs matching the filter, newest first
func (s *JobStore) List(ctx context.Context, filter driven.JobFilter) ([]*domain.PipelineJob, error) {
	builder := sq.Select(jobColumns).
		From("pipeline_jobs").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.DocumentID != "" {
		builder = builder.Where(sq.Eq{"document_id": filter.DocumentID})
	}
	if filter.Type != "" {
		builder = builder.Where(sq.Eq{"job_type": string(filter.Type)})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	builder = builder.Limit(uint64(limit)).Offset(uint64(filter.Offset))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.PipelineJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Purge removes finished jobs older than the retention window. Failed jobs
// are kept while retries remain.
func (s *JobStore) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	query := `
		DELETE FROM pipeline_jobs
		WHERE updated_at < NOW() - $1 * INTERVAL '1 second'
		  AND (status = 'done' OR (status = 'failed' AND attempts >= max_attempts))
	`
	result, err := s.db.ExecContext(ctx, query, int64(olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// Ping checks queue storage health
func (s *JobStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *JobStore) exec(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanJob(row rowScanner) (*domain.PipelineJob, error) {
	var job domain.PipelineJob
	var jobType, status string
	var lease sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.DocumentID,
		&jobType,
		&status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.Error,
		&job.NextRunAt,
		&lease,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.LeaseExpiresAt = TimePtr(lease)
	return &job, nil
}
