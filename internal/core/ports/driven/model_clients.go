package driven

import (
	"context"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
)

// Embedder generates embedding vectors for chunk texts. Implementations
// batch and retry internally; order of vectors matches order of inputs.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector width the embedder produces.
	Dimension() int
}

// Enrichment is the enrich stage's model output for one document.
type Enrichment struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Enricher produces summary metadata for a legal document.
type Enricher interface {
	Enrich(ctx context.Context, doc *domain.LegalDocument) (*Enrichment, error)
}

// EmbeddedChunk pairs a chunk with its vector for upsert.
type EmbeddedChunk struct {
	Chunk     domain.Chunk
	Embedding []float32
}

// VectorStore persists chunk embeddings for retrieval.
type VectorStore interface {
	// EnsureCollection creates the chunk collection if missing. Idempotent.
	EnsureCollection(ctx context.Context) error

	// UpsertChunks writes chunk vectors with identity payloads.
	UpsertChunks(ctx context.Context, documentID string, chunks []EmbeddedChunk) error

	// DeleteByDocument removes all vectors of a document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Health checks the backend.
	Health(ctx context.Context) error
}
