package driving

import (
	"context"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
)

// MergeReport summarizes one merge-backlog run.
type MergeReport struct {
	SourcesExamined int      `json:"sources_examined"`
	PairsMatched    int      `json:"pairs_matched"`
	DocumentsMerged int      `json:"documents_merged"`
	Promoted        int      `json:"promoted"`
	Errors          []string `json:"errors,omitempty"`
}

// IngestService registers extracted source records, reconciles matched
// pairs into canonical documents and feeds them into the pipeline.
type IngestService interface {
	// RegisterSource persists a new extraction pass.
	RegisterSource(ctx context.Context, rec *domain.SourceRecord) error

	// MergeBacklog matches and merges unconsumed sources, persisting each
	// resulting document and enqueueing its chunk job.
	MergeBacklog(ctx context.Context) (*MergeReport, error)

	// AuditDocument recomputes integrity metrics for a stored document's
	// chunk set.
	AuditDocument(ctx context.Context, documentID string) (*domain.ChunkAuditMetrics, error)
}
