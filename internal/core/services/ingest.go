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

// Ingest registers extraction passes, reconciles matched pairs into
// canonical documents and feeds the pipeline. Sources whose counterpart
// never arrives are promoted to standalone documents after a grace period.
type Ingest struct {
	sources   driven.SourceStore
	documents driven.DocumentStore
	chunks    driven.ChunkStore
	jobs      driven.JobStore
	logger    *slog.Logger

	promoteAfter time.Duration
}

// IngestConfig holds configuration for the ingest service.
type IngestConfig struct {
	SourceStore   driven.SourceStore
	DocumentStore driven.DocumentStore
	ChunkStore    driven.ChunkStore
	JobStore      driven.JobStore
	Logger        *slog.Logger

	// PromoteAfter is how long an unmatched source waits for its
	// counterpart before it becomes a document on its own.
	// Zero disables promotion. (default: 24h)
	PromoteAfter time.Duration
}

// NewIngest creates a new ingest service.
func NewIngest(cfg IngestConfig) *Ingest {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	promoteAfter := cfg.PromoteAfter
	if promoteAfter == 0 {
		promoteAfter = 24 * time.Hour
	}

	return &Ingest{
		sources:      cfg.SourceStore,
		documents:    cfg.DocumentStore,
		chunks:       cfg.ChunkStore,
		jobs:         cfg.JobStore,
		logger:       logger,
		promoteAfter: promoteAfter,
	}
}

var _ driving.IngestService = (*Ingest)(nil)

// RegisterSource validates and persists one extraction pass.
func (s *Ingest) RegisterSource(ctx context.Context, rec *domain.SourceRecord) error {
	if rec == nil || rec.SourceKey == "" {
		return fmt.Errorf("%w: source key is required", domain.ErrInvalidInput)
	}
	if rec.FileName == "" {
		return fmt.Errorf("%w: file name is required", domain.ErrInvalidInput)
	}
	if rec.ContentText == "" && len(rec.Chunks) == 0 {
		return fmt.Errorf("%w: source carries neither text nor chunks", domain.ErrInvalidInput)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if err := s.sources.Save(ctx, rec); err != nil {
		return err
	}

	s.logger.Info("source registered",
		"source_key", rec.SourceKey,
		"file_name", rec.FileName,
		"is_pdf", rec.IsPDF(),
	)
	return nil
}

// MergeBacklog runs one reconciliation pass over all unconsumed sources.
// Matched text+PDF pairs are merged into canonical documents; lone sources
// past the grace period are promoted as-is. Per-group failures are
// collected in the report instead of aborting the run.
func (s *Ingest) MergeBacklog(ctx context.Context) (*driving.MergeReport, error) {
	records, err := s.sources.ListUnmerged(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unmerged sources: %w", err)
	}

	report := &driving.MergeReport{SourcesExamined: len(records)}
	consumed := make(map[string]bool)

	for _, group := range domain.FindMatchingPairs(records) {
		report.PairsMatched++

		primary, secondary := splitPair(group.Sources)
		if primary == nil || secondary == nil {
			// All extractions in this group are of the same kind, so there
			// is nothing to reconcile yet. Leave them for the next pass.
			continue
		}

		merged, err := domain.MergeSources(primary, secondary)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("merge group %s: %v", group.Key, err))
			continue
		}

		if err := s.persistMerged(ctx, group.Key, merged); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("persist group %s: %v", group.Key, err))
			continue
		}

		// Extra extractions in the group are duplicates of the same
		// document; consume the whole group so they never re-match.
		keys := make([]string, len(group.Sources))
		for i, rec := range group.Sources {
			keys[i] = rec.SourceKey
			consumed[rec.SourceKey] = true
		}
		if err := s.sources.MarkMerged(ctx, keys); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("mark merged %s: %v", group.Key, err))
			continue
		}

		report.DocumentsMerged++
	}

	cutoff := time.Now().UTC().Add(-s.promoteAfter)
	for _, rec := range records {
		if consumed[rec.SourceKey] || !rec.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.promote(ctx, rec); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("promote %s: %v", rec.SourceKey, err))
			continue
		}
		consumed[rec.SourceKey] = true
		report.Promoted++
	}

	s.logger.Info("merge backlog pass finished",
		"sources_examined", report.SourcesExamined,
		"pairs_matched", report.PairsMatched,
		"documents_merged", report.DocumentsMerged,
		"promoted", report.Promoted,
		"errors", len(report.Errors),
	)
	return report, nil
}

// AuditDocument recomputes integrity metrics for a stored document.
func (s *Ingest) AuditDocument(ctx context.Context, documentID string) (*domain.ChunkAuditMetrics, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunks.GetByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	metrics := domain.ComputeChunkAudit(doc.ID, "chunks", doc.ContentText, chunks)
	return &metrics, nil
}

// splitPair picks the plain-text record as primary and the PDF record as
// secondary. Returns nils when the group lacks one of the two kinds.
func splitPair(records []*domain.SourceRecord) (primary, secondary *domain.SourceRecord) {
	for _, rec := range records {
		if rec.IsPDF() {
			if secondary == nil {
				secondary = rec
			}
		} else if primary == nil {
			primary = rec
		}
	}
	return primary, secondary
}

// persistMerged writes the canonical document and its chunk set and queues
// the first pipeline stage. Re-running a merge for an already persisted
// match key is a no-op.
func (s *Ingest) persistMerged(ctx context.Context, matchKey string, merged *domain.MergedDocument) error {
	if existing, err := s.documents.GetByMatchKey(ctx, matchKey); err == nil && existing != nil {
		s.logger.Debug("document already exists for match key", "match_key", matchKey, "document_id", existing.ID)
		return nil
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("lookup match key: %w", err)
	}

	primary, secondary := merged.Sources.Primary, merged.Sources.Secondary

	now := time.Now().UTC()
	doc := &domain.LegalDocument{
		ID:          uuid.NewString(),
		Title:       merged.Title,
		MatchKey:    matchKey,
		SourceURL:   firstNonEmpty(primary.SourceURL, secondary.SourceURL),
		DateAdopted: firstNonEmpty(primary.DateAdopted, secondary.DateAdopted),
		ContentText: primary.ContentText,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.documents.Save(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	return s.attachChunks(ctx, doc, merged.AllChunks)
}

// promote turns a lone source record into a standalone document.
func (s *Ingest) promote(ctx context.Context, rec *domain.SourceRecord) error {
	matchKey := promotionMatchKey(rec)

	if existing, err := s.documents.GetByMatchKey(ctx, matchKey); err == nil && existing != nil {
		return s.sources.MarkMerged(ctx, []string{rec.SourceKey})
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("lookup match key: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.LegalDocument{
		ID:          uuid.NewString(),
		Title:       firstNonEmpty(rec.Title, rec.FileName),
		MatchKey:    matchKey,
		SourceURL:   rec.SourceURL,
		DateAdopted: rec.DateAdopted,
		ContentText: rec.ContentText,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.documents.Save(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	if err := s.attachChunks(ctx, doc, rec.Chunks); err != nil {
		return err
	}

	s.logger.Info("promoted unmatched source",
		"source_key", rec.SourceKey,
		"document_id", doc.ID,
		"match_key", matchKey,
	)
	return s.sources.MarkMerged(ctx, []string{rec.SourceKey})
}

// attachChunks persists an extraction-supplied chunk set and queues the
// embed stage. A document without usable chunks is queued for the chunk
// stage instead, which rebuilds the set from the content text.
func (s *Ingest) attachChunks(ctx context.Context, doc *domain.LegalDocument, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return s.enqueue(ctx, doc.ID, domain.JobTypeChunk)
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

	if err := s.chunks.ReplaceForDocument(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	if audit := domain.ComputeChunkAudit(doc.ID, "chunks", doc.ContentText, chunks); !audit.Clean() {
		// Merged PDF table chunks carry offsets from their own extraction,
		// so coverage warnings here are informational, not fatal.
		s.logger.Warn("chunk set failed integrity audit",
			"document_id", doc.ID,
			"coverage_ratio", audit.CoverageRatio,
			"gap_violations", len(audit.GapViolations),
			"overlap_violations", len(audit.OverlapViolations),
		)
	}

	return s.enqueue(ctx, doc.ID, domain.JobTypeEmbed)
}

func (s *Ingest) enqueue(ctx context.Context, documentID string, stage domain.JobType) error {
	err := s.jobs.Enqueue(ctx, domain.NewPipelineJob(documentID, stage))
	if errors.Is(err, domain.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s job: %w", stage, err)
	}
	return nil
}

// promotionMatchKey derives a stable match key for a document created from
// a single source, mirroring the keys the pair matcher would have used.
func promotionMatchKey(rec *domain.SourceRecord) string {
	if id := domain.ExtractArlisID(rec); id != "" {
		return "arlis:" + id
	}
	if title := domain.NormalizeTitle(rec.Title); title != "" && rec.DateAdopted != "" {
		return "title:" + title + "|" + rec.DateAdopted
	}
	return "source:" + rec.SourceKey
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
