package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driving"
)

const tickLockKey = "pipeline-tick"

// Orchestrator drives the ingestion pipeline. Each tick inspects the
// per-stage backlog and dispatches at most one worker run, targeting the
// earliest stage in the pipeline that has work. Ticks are stateless and
// idempotent, so an external cron can fire them at any cadence.
//
// For multi-instance deployments, configure a DistributedLock so that
// overlapping ticks from different instances do not double-dispatch.
type Orchestrator struct {
	jobs   driven.JobStore
	worker driven.StageWorkerClient
	lock   driven.DistributedLock
	logger *slog.Logger

	concurrencyDocs int
	lockTTL         time.Duration
}

// OrchestratorConfig holds configuration for the orchestrator.
type OrchestratorConfig struct {
	JobStore     driven.JobStore
	WorkerClient driven.StageWorkerClient
	Lock         driven.DistributedLock // Optional: tick mutual exclusion across instances
	Logger       *slog.Logger

	ConcurrencyDocs int           // Documents per worker run (default: 25)
	LockTTL         time.Duration // TTL for the tick lock (default: 60s)
}

// NewOrchestrator creates a new pipeline orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.ConcurrencyDocs
	if concurrency <= 0 {
		concurrency = 25
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 60 * time.Second
	}

	return &Orchestrator{
		jobs:            cfg.JobStore,
		worker:          cfg.WorkerClient,
		lock:            cfg.Lock,
		logger:          logger,
		concurrencyDocs: concurrency,
		lockTTL:         lockTTL,
	}
}

// Ensure Orchestrator implements the driving port.
var _ driving.PipelineOrchestrator = (*Orchestrator)(nil)

// RunTick performs one scheduling pass: count the backlog of every stage,
// pick the earliest stage with pending or stale work, and trigger one
// worker run for it. Worker failures are reported in the result rather
// than failing the tick; the lease mechanism makes the next tick retry.
func (o *Orchestrator) RunTick(ctx context.Context) (*driving.TickResult, error) {
	start := time.Now()

	if o.lock != nil {
		acquired, err := o.lock.Acquire(ctx, tickLockKey, o.lockTTL)
		if err != nil {
			// Lock backend unavailable. Ticks are idempotent, so run anyway.
			o.logger.Warn("failed to acquire tick lock, proceeding", "error", err)
		} else if !acquired {
			o.logger.Debug("tick lock held by another instance, skipping")
			return &driving.TickResult{
				StageTriggered: "skipped",
				DurationMS:     time.Since(start).Milliseconds(),
			}, nil
		} else {
			defer func() {
				if err := o.lock.Release(ctx, tickLockKey); err != nil {
					o.logger.Warn("failed to release tick lock", "error", err)
				}
			}()
		}
	}

	backlogs := make(map[domain.JobType]domain.StageBacklog, len(domain.StageOrder))
	for _, stage := range domain.StageOrder {
		b, err := o.jobs.Backlog(ctx, stage)
		if err != nil {
			return nil, fmt.Errorf("backlog for stage %s: %w", stage, err)
		}
		backlogs[stage] = b
	}

	result := &driving.TickResult{
		ChunkPending:   backlogs[domain.JobTypeChunk].Total(),
		EmbedPending:   backlogs[domain.JobTypeEmbed].Total(),
		EnrichPending:  backlogs[domain.JobTypeEnrich].Total(),
		StageTriggered: "idle",
	}

	// Earlier stages feed later ones, so drain them in pipeline order.
	var target domain.JobType
	for _, stage := range domain.StageOrder {
		if backlogs[stage].Total() > 0 {
			target = stage
			break
		}
	}

	if target != "" {
		result.StageTriggered = string(target)
		raw, err := o.worker.Trigger(ctx, target, driven.StageWorkerRequest{
			ConcurrencyDocs: o.concurrencyDocs,
		})
		if err != nil {
			o.logger.Error("stage worker trigger failed",
				"stage", target,
				"error", err,
			)
			msg, _ := json.Marshal(map[string]string{"error": err.Error()})
			result.WorkerResult = json.RawMessage(msg)
		} else {
			result.WorkerResult = raw
		}

		o.logger.Info("tick dispatched",
			"stage", target,
			"chunk_pending", result.ChunkPending,
			"embed_pending", result.EmbedPending,
			"enrich_pending", result.EnrichPending,
		)
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}
