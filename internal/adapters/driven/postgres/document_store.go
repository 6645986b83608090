package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements driven.DocumentStore using PostgreSQL
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Save creates or updates a document
func (s *DocumentStore) Save(ctx context.Context, doc *domain.LegalDocument) error {
	query := `
		INSERT INTO documents (id, title, match_key, source_url, date_adopted, content_text, summary, keywords, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			match_key = EXCLUDED.match_key,
			source_url = EXCLUDED.source_url,
			date_adopted = EXCLUDED.date_adopted,
			content_text = EXCLUDED.content_text,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Title,
		sql.NullString{String: doc.MatchKey, Valid: doc.MatchKey != ""},
		doc.SourceURL,
		doc.DateAdopted,
		doc.ContentText,
		doc.Summary,
		pq.Array(doc.Keywords),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// Get retrieves a document by ID
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.LegalDocument, error) {
	query := selectDocument + ` WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetByMatchKey retrieves the document created for a match key
func (s *DocumentStore) GetByMatchKey(ctx context.Context, matchKey string) (*domain.LegalDocument, error) {
	query := selectDocument + ` WHERE match_key = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, matchKey))
}

// SetEnrichment stores the enrich stage output
func (s *DocumentStore) SetEnrichment(ctx context.Context, id, summary string, keywords []string) error {
	query := `
		UPDATE documents
		SET summary = $1, keywords = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, summary, pq.Array(keywords), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List retrieves documents, newest first
func (s *DocumentStore) List(ctx context.Context, limit, offset int) ([]*domain.LegalDocument, error) {
	if limit <= 0 {
		limit = 50
	}

	query := selectDocument + ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.LegalDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document; its chunks go with it via cascade
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const selectDocument = `
	SELECT id, title, match_key, source_url, date_adopted, content_text, summary, keywords, created_at, updated_at
	FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *DocumentStore) scanOne(row *sql.Row) (*domain.LegalDocument, error) {
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

func scanDocument(row rowScanner) (*domain.LegalDocument, error) {
	var doc domain.LegalDocument
	var matchKey sql.NullString

	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&matchKey,
		&doc.SourceURL,
		&doc.DateAdopted,
		&doc.ContentText,
		&doc.Summary,
		pq.Array(&doc.Keywords),
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.MatchKey = matchKey.String
	return &doc, nil
}
