package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore implements driven.ChunkStore using PostgreSQL
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// ReplaceForDocument atomically swaps a document's chunk set
func (s *ChunkStore) ReplaceForDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}

		query := `
			INSERT INTO chunks (id, document_id, chunk_index, chunk_type, chunk_text, char_start, char_end, label, locator, chunk_hash, embedded, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range chunks {
			_, err := stmt.ExecContext(ctx,
				c.ID,
				documentID,
				c.Index,
				string(c.Type),
				c.Text,
				c.CharStart,
				c.CharEnd,
				c.Label,
				c.Locator,
				c.Hash,
				c.Embedded,
				c.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", c.Index, err)
			}
		}
		return nil
	})
}

// GetByDocument retrieves a document's chunks ordered by index
func (s *ChunkStore) GetByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	query := `
		SELECT id, document_id, chunk_index, chunk_type, chunk_text, char_start, char_end, label, locator, chunk_hash, embedded, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var chunkType string
		err := rows.Scan(
			&c.ID,
			&c.DocumentID,
			&c.Index,
			&chunkType,
			&c.Text,
			&c.CharStart,
			&c.CharEnd,
			&c.Label,
			&c.Locator,
			&c.Hash,
			&c.Embedded,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		c.Type = domain.ChunkType(chunkType)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// MarkEmbedded flags chunks as carried into the vector store
func (s *ChunkStore) MarkEmbedded(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET embedded = TRUE WHERE id = ANY($1)`,
		pq.Array(chunkIDs),
	)
	return err
}

// DeleteByDocument removes a document's chunks
func (s *ChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}
