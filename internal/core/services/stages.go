package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driving"
)

// StageRunner executes claimed pipeline jobs for a single stage invocation.
// It claims up to concurrencyDocs jobs with a lease, processes them one by
// one, and abandons jobs whose lease runs out mid-batch so the next tick
// can reclaim them.
type StageRunner struct {
	jobs      driven.JobStore
	documents driven.DocumentStore
	chunks    driven.ChunkStore
	chunker   driven.DocumentChunker
	embedder  driven.Embedder
	enricher  driven.Enricher
	vectors   driven.VectorStore
	logger    *slog.Logger

	leaseTTL    time.Duration
	leaseSafety time.Duration
	embedBatch  int
}

// StageRunnerConfig holds configuration for the stage runner.
type StageRunnerConfig struct {
	JobStore      driven.JobStore
	DocumentStore driven.DocumentStore
	ChunkStore    driven.ChunkStore
	Chunker       driven.DocumentChunker
	Embedder      driven.Embedder
	Enricher      driven.Enricher
	VectorStore   driven.VectorStore
	Logger        *slog.Logger

	LeaseTTL    time.Duration // Job lease duration (default: 2m)
	LeaseSafety time.Duration // Abandon jobs with less lease remaining than this (default: 10s)
	EmbedBatch  int           // Chunks per embedding request (default: 64)
}

// NewStageRunner creates a new stage runner.
func NewStageRunner(cfg StageRunnerConfig) *StageRunner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	leaseTTL := cfg.LeaseTTL
	if leaseTTL == 0 {
		leaseTTL = 2 * time.Minute
	}

	leaseSafety := cfg.LeaseSafety
	if leaseSafety == 0 {
		leaseSafety = 10 * time.Second
	}

	embedBatch := cfg.EmbedBatch
	if embedBatch <= 0 {
		embedBatch = 64
	}

	return &StageRunner{
		jobs:        cfg.JobStore,
		documents:   cfg.DocumentStore,
		chunks:      cfg.ChunkStore,
		chunker:     cfg.Chunker,
		embedder:    cfg.Embedder,
		enricher:    cfg.Enricher,
		vectors:     cfg.VectorStore,
		logger:      logger,
		leaseTTL:    leaseTTL,
		leaseSafety: leaseSafety,
		embedBatch:  embedBatch,
	}
}

var _ driving.StageRunner = (*StageRunner)(nil)

// Run claims and processes up to concurrencyDocs jobs for the given stage.
// Permanent per-job failures are recorded on the job with a retry backoff
// and do not abort the batch.
func (r *StageRunner) Run(ctx context.Context, stage domain.JobType, concurrencyDocs int) (*driving.StageRunResult, error) {
	if _, err := domain.ParseJobType(string(stage)); err != nil {
		return nil, err
	}

	if concurrencyDocs <= 0 {
		concurrencyDocs = 25
	}

	jobs, err := r.jobs.Claim(ctx, stage, concurrencyDocs, r.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("claim %s jobs: %w", stage, err)
	}

	result := &driving.StageRunResult{
		Stage:   stage,
		Claimed: len(jobs),
	}

	for i, job := range jobs {
		if job.LeaseExpiresAt != nil && time.Until(*job.LeaseExpiresAt) < r.leaseSafety {
			// Not enough lease left to finish safely. Leave the rest for
			// the next tick, which will reclaim them once the lease lapses.
			result.Abandoned = len(jobs) - i
			r.logger.Warn("abandoning remaining jobs, lease nearly expired",
				"stage", stage,
				"abandoned", result.Abandoned,
			)
			break
		}

		if err := r.process(ctx, job); err != nil {
			result.Failed++
			r.logger.Error("stage job failed",
				"stage", stage,
				"job_id", job.ID,
				"document_id", job.DocumentID,
				"attempt", job.Attempts,
				"error", err,
			)
			if ferr := r.jobs.Fail(ctx, job.ID, err.Error(), domain.RetryBackoff(job.Attempts)); ferr != nil {
				r.logger.Error("failed to mark job failed", "job_id", job.ID, "error", ferr)
			}
			continue
		}

		result.Processed++
		if cerr := r.jobs.Complete(ctx, job.ID); cerr != nil {
			r.logger.Error("failed to mark job done", "job_id", job.ID, "error", cerr)
		}
	}

	r.logger.Info("stage run finished",
		"stage", stage,
		"claimed", result.Claimed,
		"processed", result.Processed,
		"failed", result.Failed,
		"abandoned", result.Abandoned,
	)

	return result, nil
}

func (r *StageRunner) process(ctx context.Context, job *domain.PipelineJob) error {
	switch job.Type {
	case domain.JobTypeChunk:
		return r.runChunk(ctx, job)
	case domain.JobTypeEmbed:
		return r.runEmbed(ctx, job)
	case domain.JobTypeEnrich:
		return r.runEnrich(ctx, job)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownStage, job.Type)
	}
}

// runChunk splits the document text into chunks, verifies the chunk set
// against the integrity audit, persists it, and queues the embed stage.
func (r *StageRunner) runChunk(ctx context.Context, job *domain.PipelineJob) error {
	doc, err := r.documents.Get(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	chunks, err := r.chunker.ChunkDocument(doc.ContentText)
	if err != nil {
		return fmt.Errorf("chunk document: %w", err)
	}

	now := time.Now().UTC()
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].DocumentID = doc.ID
		chunks[i].CreatedAt = now
		if chunks[i].Hash == "" {
			chunks[i].Hash = domain.HashChunkText(chunks[i].Text)
		}
	}

	audit := domain.ComputeChunkAudit(doc.ID, "chunks", doc.ContentText, chunks)
	if !audit.Clean() {
		return fmt.Errorf("chunk audit rejected chunk set: coverage=%.4f gaps=%d overlaps=%d boundary=%d missing=%d duplicates=%d empty=%d",
			audit.CoverageRatio,
			len(audit.GapViolations),
			len(audit.OverlapViolations),
			len(audit.BoundaryViolations),
			len(audit.MissingIndices),
			len(audit.DuplicateHashes),
			len(audit.EmptyChunks),
		)
	}

	if err := r.chunks.ReplaceForDocument(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	return r.enqueueNext(ctx, doc.ID, domain.JobTypeEmbed)
}

// runEmbed generates embeddings for the document's chunks, upserts them
// into the vector store, and queues the enrich stage.
func (r *StageRunner) runEmbed(ctx context.Context, job *domain.PipelineJob) error {
	chunks, err := r.chunks.GetByDocument(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("document %s has no chunks to embed", job.DocumentID)
	}

	embedded := make([]driven.EmbeddedChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += r.embedBatch {
		end := start + r.embedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := r.embedder.GenerateEmbeddings(ctx, texts)
		if err != nil {
			return fmt.Errorf("generate embeddings: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i, c := range batch {
			embedded = append(embedded, driven.EmbeddedChunk{Chunk: c, Embedding: vectors[i]})
		}
	}

	if err := r.vectors.UpsertChunks(ctx, job.DocumentID, embedded); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := r.chunks.MarkEmbedded(ctx, ids); err != nil {
		return fmt.Errorf("mark chunks embedded: %w", err)
	}

	return r.enqueueNext(ctx, job.DocumentID, domain.JobTypeEnrich)
}

// runEnrich asks the enrichment model for a summary and keywords and
// stores them on the document. This is the final pipeline stage.
func (r *StageRunner) runEnrich(ctx context.Context, job *domain.PipelineJob) error {
	doc, err := r.documents.Get(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	enrichment, err := r.enricher.Enrich(ctx, doc)
	if err != nil {
		return fmt.Errorf("enrich document: %w", err)
	}

	if err := r.documents.SetEnrichment(ctx, doc.ID, enrichment.Summary, enrichment.Keywords); err != nil {
		return fmt.Errorf("store enrichment: %w", err)
	}

	return nil
}

func (r *StageRunner) enqueueNext(ctx context.Context, documentID string, next domain.JobType) error {
	err := r.jobs.Enqueue(ctx, domain.NewPipelineJob(documentID, next))
	if errors.Is(err, domain.ErrAlreadyExists) {
		// A live job for this document and stage already exists. Fine.
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s job: %w", next, err)
	}
	return nil
}
