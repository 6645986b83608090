package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// MockJobStore is an in-memory JobStore for testing. Claim honors the same
// eligibility rules as the Postgres implementation.
type MockJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.PipelineJob

	// Error hooks
	ClaimErr   error
	BacklogErr error
}

// NewMockJobStore creates a new MockJobStore.
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{jobs: make(map[string]*domain.PipelineJob)}
}

func (m *MockJobStore) Enqueue(ctx context.Context, job *domain.PipelineJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.jobs {
		if existing.DocumentID == job.DocumentID && existing.Type == job.Type &&
			(existing.Status == domain.JobStatusPending || existing.Status == domain.JobStatusProcessing) {
			return domain.ErrAlreadyExists
		}
	}
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *MockJobStore) Claim(ctx context.Context, stage domain.JobType, limit int, leaseTTL time.Duration) ([]*domain.PipelineJob, error) {
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var claimed []*domain.PipelineJob
	for _, job := range m.jobs {
		if len(claimed) >= limit {
			break
		}
		if job.Type != stage {
			continue
		}
		if job.IsReady(now) || job.IsStale(now) {
			job.MarkProcessing(leaseTTL)
			clone := *job
			claimed = append(claimed, &clone)
		}
	}
	return claimed, nil
}

func (m *MockJobStore) Complete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.MarkDone()
	return nil
}

func (m *MockJobStore) Fail(ctx context.Context, jobID string, reason string, backoff time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusFailed
	job.Error = reason
	job.LeaseExpiresAt = nil
	job.NextRunAt = time.Now().Add(backoff)
	job.UpdatedAt = time.Now()
	return nil
}

func (m *MockJobStore) Backlog(ctx context.Context, stage domain.JobType) (domain.StageBacklog, error) {
	if m.BacklogErr != nil {
		return domain.StageBacklog{}, m.BacklogErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var backlog domain.StageBacklog
	for _, job := range m.jobs {
		if job.Type != stage {
			continue
		}
		if job.IsReady(now) {
			backlog.Ready++
		} else if job.IsStale(now) {
			backlog.Stale++
		}
	}
	return backlog, nil
}

func (m *MockJobStore) Get(ctx context.Context, jobID string) (*domain.PipelineJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (m *MockJobStore) List(ctx context.Context, filter driven.JobFilter) ([]*domain.PipelineJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.PipelineJob
	for _, job := range m.jobs {
		if filter.DocumentID != "" && job.DocumentID != filter.DocumentID {
			continue
		}
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		clone := *job
		result = append(result, &clone)
	}
	return result, nil
}

func (m *MockJobStore) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	purged := 0
	for id, job := range m.jobs {
		if (job.Status == domain.JobStatusDone || job.Status == domain.JobStatusFailed) &&
			job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			purged++
		}
	}
	return purged, nil
}

func (m *MockJobStore) Ping(ctx context.Context) error { return nil }

// Seed inserts a job bypassing Enqueue checks.
func (m *MockJobStore) Seed(job *domain.PipelineJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *job
	m.jobs[job.ID] = &clone
}

// Jobs returns a snapshot of all stored jobs.
func (m *MockJobStore) Jobs() []*domain.PipelineJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.PipelineJob
	for _, job := range m.jobs {
		clone := *job
		result = append(result, &clone)
	}
	return result
}
