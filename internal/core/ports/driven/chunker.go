package driven

import "github.com/datalex-labs/datalex-core/internal/core/domain"

// DocumentChunker splits a document's normalized text into an offset-
// addressed chunk set. Returned chunks are indexed contiguously from 0.
type DocumentChunker interface {
	ChunkDocument(text string) ([]domain.Chunk, error)
}
