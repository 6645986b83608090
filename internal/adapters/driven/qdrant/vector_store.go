// Package qdrant implements the vector store port on a Qdrant instance
// over gRPC. Chunk vectors live in one collection under a named "content"
// vector, with payload indexes on the fields retrieval filters by.
package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorStore = (*VectorStore)(nil)

// DefaultCollection is the chunk collection name.
const DefaultCollection = "legal_chunks"

// upsertBatchSize caps points per upsert request.
const upsertBatchSize = 100

// VectorStore wraps the Qdrant client.
type VectorStore struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
}

// VectorStoreConfig holds configuration for the vector store.
type VectorStoreConfig struct {
	Host       string
	Port       int
	Collection string // Default: legal_chunks
	Dimension  int    // Vector width, must match the embedder
}

// NewVectorStore creates a Qdrant-backed vector store and verifies the
// instance is reachable, retrying with exponential backoff on startup.
func NewVectorStore(ctx context.Context, cfg VectorStoreConfig) (*VectorStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	store := &VectorStore{
		client:     client,
		collection: collection,
		dimension:  uint64(cfg.Dimension),
	}

	if err := backoff.Retry(func() error {
		return store.Health(ctx)
	}, backoff.WithContext(newBackOff(), ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant unreachable: %w", err)
	}

	return store, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Health performs a single health check against Qdrant.
func (s *VectorStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the chunk collection and its payload indexes if
// missing. Idempotent - safe to call on every startup.
func (s *VectorStore) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			"content": {
				Size:     s.dimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Without these indexes, per-document filtering degrades badly.
	for _, field := range []string{"document_id", "chunk_type"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// UpsertChunks writes chunk vectors in batches, retrying transient errors.
func (s *VectorStore) UpsertChunks(ctx context.Context, documentID string, chunks []driven.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, chunk := range chunks {
		if uint64(len(chunk.Embedding)) != s.dimension {
			return fmt.Errorf("chunk %d has %d dimensions, expected %d", i, len(chunk.Embedding), s.dimension)
		}
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch := chunks[start:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for i, chunk := range batch {
			points[i] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(chunk.Chunk.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					"content": qdrant.NewVector(chunk.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id": documentID,
					"chunk_index": chunk.Chunk.Index,
					"chunk_type":  string(chunk.Chunk.Type),
					"label":       chunk.Chunk.Label,
					"content":     chunk.Chunk.Text,
				}),
			}
		}

		err := backoff.Retry(func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: s.collection,
				Points:         points,
			})
			return err
		}, backoff.WithContext(newBackOff(), ctx))
		if err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", start, end, err)
		}
	}

	return nil
}

// DeleteByDocument removes all vectors of a document.
func (s *VectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *VectorStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
