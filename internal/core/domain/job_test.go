package domain

import (
	"testing"
	"time"
)

func TestNewPipelineJob(t *testing.T) {
	job := NewPipelineJob("doc-1", JobTypeChunk)

	if job.ID == "" {
		t.Error("expected non-empty ID")
	}
	if job.DocumentID != "doc-1" {
		t.Errorf("expected document ID doc-1, got %s", job.DocumentID)
	}
	if job.Status != JobStatusPending {
		t.Errorf("expected status pending, got %s", job.Status)
	}
	if job.Attempts != 0 {
		t.Errorf("expected 0 attempts, got %d", job.Attempts)
	}
	if job.MaxAttempts != MaxJobAttempts {
		t.Errorf("expected max attempts %d, got %d", MaxJobAttempts, job.MaxAttempts)
	}
	if job.LeaseExpiresAt != nil {
		t.Error("expected no lease on a new job")
	}
}

func TestParseJobType(t *testing.T) {
	for _, stage := range []string{"chunk", "embed", "enrich"} {
		if _, err := ParseJobType(stage); err != nil {
			t.Errorf("expected %s to parse, got %v", stage, err)
		}
	}
	if _, err := ParseJobType("shred"); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestJobIsReady(t *testing.T) {
	now := time.Now()

	job := NewPipelineJob("doc-1", JobTypeChunk)
	if !job.IsReady(now) {
		t.Error("expected a fresh pending job to be ready")
	}

	job.Status = JobStatusFailed
	job.NextRunAt = now.Add(-time.Second)
	if !job.IsReady(now) {
		t.Error("expected a failed job past its backoff window to be ready")
	}

	job.NextRunAt = now.Add(time.Minute)
	if job.IsReady(now) {
		t.Error("expected a job inside its backoff window not to be ready")
	}

	job.NextRunAt = now.Add(-time.Second)
	job.Attempts = MaxJobAttempts
	if job.IsReady(now) {
		t.Error("expected a job at the attempt cap not to be ready")
	}

	done := NewPipelineJob("doc-1", JobTypeChunk)
	done.Status = JobStatusDone
	if done.IsReady(now) {
		t.Error("expected a done job not to be ready")
	}
}

func TestJobIsStale(t *testing.T) {
	now := time.Now()

	job := NewPipelineJob("doc-1", JobTypeEmbed)
	if job.IsStale(now) {
		t.Error("expected a pending job not to be stale")
	}

	job.MarkProcessing(time.Minute)
	if job.IsStale(now) {
		t.Error("expected a freshly leased job not to be stale")
	}

	expired := now.Add(-time.Second)
	job.LeaseExpiresAt = &expired
	if !job.IsStale(now) {
		t.Error("expected a lease-expired processing job to be stale")
	}
}

func TestJobLifecycle(t *testing.T) {
	job := NewPipelineJob("doc-1", JobTypeEnrich)

	job.MarkProcessing(30 * time.Second)
	if job.Status != JobStatusProcessing {
		t.Errorf("expected status processing, got %s", job.Status)
	}
	if job.Attempts != 1 {
		t.Errorf("expected attempts incremented to 1, got %d", job.Attempts)
	}
	if job.LeaseExpiresAt == nil {
		t.Fatal("expected a lease to be set")
	}

	job.MarkFailed("embedding timeout")
	if job.Status != JobStatusFailed {
		t.Errorf("expected status failed, got %s", job.Status)
	}
	if job.Error != "embedding timeout" {
		t.Errorf("expected error recorded, got %q", job.Error)
	}
	if job.LeaseExpiresAt != nil {
		t.Error("expected lease cleared on failure")
	}
	if !job.NextRunAt.After(time.Now()) {
		t.Error("expected next run scheduled in the future")
	}

	job.MarkProcessing(30 * time.Second)
	job.MarkDone()
	if job.Status != JobStatusDone {
		t.Errorf("expected status done, got %s", job.Status)
	}
	if job.Error != "" {
		t.Errorf("expected error cleared, got %q", job.Error)
	}
}

func TestRetryBackoff(t *testing.T) {
	if RetryBackoff(1) != 2*time.Second {
		t.Errorf("expected 2s after first attempt, got %v", RetryBackoff(1))
	}
	if RetryBackoff(2) != 4*time.Second {
		t.Errorf("expected 4s after second attempt, got %v", RetryBackoff(2))
	}
	if RetryBackoff(3) >= RetryBackoff(4) {
		t.Error("expected backoff to grow")
	}
	if RetryBackoff(30) != 5*time.Minute {
		t.Errorf("expected backoff capped at 5m, got %v", RetryBackoff(30))
	}
}

func TestStageBacklogTotal(t *testing.T) {
	b := StageBacklog{Ready: 3, Stale: 2}
	if b.Total() != 5 {
		t.Errorf("expected total 5, got %d", b.Total())
	}
}
