package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
)

// MockDocumentStore is an in-memory DocumentStore for testing.
type MockDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*domain.LegalDocument

	SaveErr error
}

// NewMockDocumentStore creates a new MockDocumentStore.
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{docs: make(map[string]*domain.LegalDocument)}
}

func (m *MockDocumentStore) Save(ctx context.Context, doc *domain.LegalDocument) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *doc
	m.docs[doc.ID] = &clone
	return nil
}

func (m *MockDocumentStore) Get(ctx context.Context, id string) (*domain.LegalDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (m *MockDocumentStore) GetByMatchKey(ctx context.Context, matchKey string) (*domain.LegalDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.docs {
		if doc.MatchKey == matchKey {
			clone := *doc
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockDocumentStore) SetEnrichment(ctx context.Context, id, summary string, keywords []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Summary = summary
	doc.Keywords = keywords
	doc.UpdatedAt = time.Now()
	return nil
}

func (m *MockDocumentStore) List(ctx context.Context, limit, offset int) ([]*domain.LegalDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.LegalDocument
	for _, doc := range m.docs {
		clone := *doc
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

// MockChunkStore is an in-memory ChunkStore for testing.
type MockChunkStore struct {
	mu         sync.RWMutex
	byDocument map[string][]domain.Chunk
}

// NewMockChunkStore creates a new MockChunkStore.
func NewMockChunkStore() *MockChunkStore {
	return &MockChunkStore{byDocument: make(map[string][]domain.Chunk)}
}

func (m *MockChunkStore) ReplaceForDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]domain.Chunk, len(chunks))
	copy(copied, chunks)
	m.byDocument[documentID] = copied
	return nil
}

func (m *MockChunkStore) GetByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks := m.byDocument[documentID]
	copied := make([]domain.Chunk, len(chunks))
	copy(copied, chunks)
	sort.Slice(copied, func(i, j int) bool { return copied[i].Index < copied[j].Index })
	return copied, nil
}

func (m *MockChunkStore) MarkEmbedded(ctx context.Context, chunkIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		ids[id] = true
	}
	for docID, chunks := range m.byDocument {
		for i := range chunks {
			if ids[chunks[i].ID] {
				chunks[i].Embedded = true
			}
		}
		m.byDocument[docID] = chunks
	}
	return nil
}

func (m *MockChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byDocument, documentID)
	return nil
}

// MockSourceStore is an in-memory SourceStore for testing.
type MockSourceStore struct {
	mu      sync.RWMutex
	records map[string]*domain.SourceRecord
}

// NewMockSourceStore creates a new MockSourceStore.
func NewMockSourceStore() *MockSourceStore {
	return &MockSourceStore{records: make(map[string]*domain.SourceRecord)}
}

func (m *MockSourceStore) Save(ctx context.Context, rec *domain.SourceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.SourceKey]; ok {
		return domain.ErrAlreadyExists
	}
	clone := *rec
	m.records[rec.SourceKey] = &clone
	return nil
}

func (m *MockSourceStore) Get(ctx context.Context, sourceKey string) (*domain.SourceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sourceKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *MockSourceStore) ListUnmerged(ctx context.Context) ([]*domain.SourceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.SourceRecord
	for _, rec := range m.records {
		if rec.MergedAt == nil {
			clone := *rec
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SourceKey < result[j].SourceKey })
	return result, nil
}

func (m *MockSourceStore) MarkMerged(ctx context.Context, sourceKeys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, key := range sourceKeys {
		if rec, ok := m.records[key]; ok {
			rec.MergedAt = &now
		}
	}
	return nil
}
