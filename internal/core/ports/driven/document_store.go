package driven

import (
	"context"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
)

// DocumentStore persists canonical legal documents.
type DocumentStore interface {
	// Save creates or updates a document.
	Save(ctx context.Context, doc *domain.LegalDocument) error

	// Get retrieves a document by ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.LegalDocument, error)

	// GetByMatchKey retrieves the document created for a match key, if any.
	GetByMatchKey(ctx context.Context, matchKey string) (*domain.LegalDocument, error)

	// SetEnrichment stores the enrich stage's output on the document.
	SetEnrichment(ctx context.Context, id, summary string, keywords []string) error

	// List retrieves documents, newest first.
	List(ctx context.Context, limit, offset int) ([]*domain.LegalDocument, error)

	// Delete removes a document and, via cascade, its chunks.
	Delete(ctx context.Context, id string) error
}

// ChunkStore persists the chunk sets of canonical documents.
type ChunkStore interface {
	// ReplaceForDocument atomically swaps a document's chunk set. The chunk
	// stage rewrites the whole set, never patches it.
	ReplaceForDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error

	// GetByDocument retrieves a document's chunks ordered by chunk index.
	GetByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// MarkEmbedded flags the given chunks as carried into the vector store.
	MarkEmbedded(ctx context.Context, chunkIDs []string) error

	// DeleteByDocument removes a document's chunks.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// SourceStore persists raw extraction passes awaiting merge.
type SourceStore interface {
	// Save stores a new source record. Returns domain.ErrAlreadyExists for
	// a duplicate source key.
	Save(ctx context.Context, rec *domain.SourceRecord) error

	// Get retrieves a record by source key.
	Get(ctx context.Context, sourceKey string) (*domain.SourceRecord, error)

	// ListUnmerged retrieves records not yet consumed into a document.
	ListUnmerged(ctx context.Context) ([]*domain.SourceRecord, error)

	// MarkMerged stamps records as consumed by a merge.
	MarkMerged(ctx context.Context, sourceKeys []string) error
}
