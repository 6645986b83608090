package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SourceStore = (*SourceStore)(nil)

// SourceStore implements driven.SourceStore using PostgreSQL. Extraction
// chunk sets are stored as JSONB since they are opaque until merge time.
type SourceStore struct {
	db *DB
}

// NewSourceStore creates a new SourceStore
func NewSourceStore(db *DB) *SourceStore {
	return &SourceStore{db: db}
}

// Save stores a new source record
func (s *SourceStore) Save(ctx context.Context, rec *domain.SourceRecord) error {
	chunksJSON, err := json.Marshal(rec.Chunks)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}

	query := `
		INSERT INTO sources (source_key, file_name, mime_type, title, content_text, source_url, date_adopted, chunks, created_at, merged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.SourceKey,
		rec.FileName,
		rec.MimeType,
		rec.Title,
		rec.ContentText,
		rec.SourceURL,
		rec.DateAdopted,
		chunksJSON,
		rec.CreatedAt,
		NullTime(rec.MergedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Get retrieves a record by source key
func (s *SourceStore) Get(ctx context.Context, sourceKey string) (*domain.SourceRecord, error) {
	query := selectSource + ` WHERE source_key = $1`
	rec, err := scanSource(s.db.QueryRowContext(ctx, query, sourceKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// ListUnmerged retrieves records not yet consumed into a document
func (s *SourceStore) ListUnmerged(ctx context.Context) ([]*domain.SourceRecord, error) {
	query := selectSource + ` WHERE merged_at IS NULL ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.SourceRecord
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkMerged stamps records as consumed by a merge
func (s *SourceStore) MarkMerged(ctx context.Context, sourceKeys []string) error {
	if len(sourceKeys) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET merged_at = NOW() WHERE source_key = ANY($1)`,
		pq.Array(sourceKeys),
	)
	return err
}

const selectSource = `
	SELECT source_key, file_name, mime_type, title, content_text, source_url, date_adopted, chunks, created_at, merged_at
	FROM sources`

func scanSource(row rowScanner) (*domain.SourceRecord, error) {
	var rec domain.SourceRecord
	var chunksJSON []byte
	var mergedAt sql.NullTime

	err := row.Scan(
		&rec.SourceKey,
		&rec.FileName,
		&rec.MimeType,
		&rec.Title,
		&rec.ContentText,
		&rec.SourceURL,
		&rec.DateAdopted,
		&chunksJSON,
		&rec.CreatedAt,
		&mergedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(chunksJSON) > 0 {
		if err := json.Unmarshal(chunksJSON, &rec.Chunks); err != nil {
			return nil, fmt.Errorf("unmarshal chunks: %w", err)
		}
	}
	rec.MergedAt = TimePtr(mergedAt)
	return &rec, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
