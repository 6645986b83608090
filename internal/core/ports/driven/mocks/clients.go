package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// MockEmbedder returns deterministic vectors for testing.
type MockEmbedder struct {
	Dim int
	Err error

	mu    sync.Mutex
	Calls [][]string
}

// NewMockEmbedder creates a MockEmbedder with the given dimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{Dim: dim}
}

func (m *MockEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, texts)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, m.Dim)
		vec[0] = float32(len(texts[i]))
		vectors[i] = vec
	}
	return vectors, nil
}

func (m *MockEmbedder) Dimension() int { return m.Dim }

// MockEnricher returns a fixed enrichment.
type MockEnricher struct {
	Result *driven.Enrichment
	Err    error
}

// NewMockEnricher creates a MockEnricher with a default result.
func NewMockEnricher() *MockEnricher {
	return &MockEnricher{Result: &driven.Enrichment{Summary: "summary", Keywords: []string{"law"}}}
}

func (m *MockEnricher) Enrich(ctx context.Context, doc *domain.LegalDocument) (*driven.Enrichment, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

// MockVectorStore records upserts in memory.
type MockVectorStore struct {
	mu       sync.RWMutex
	byDoc    map[string][]driven.EmbeddedChunk
	UpsertEr error
}

// NewMockVectorStore creates a new MockVectorStore.
func NewMockVectorStore() *MockVectorStore {
	return &MockVectorStore{byDoc: make(map[string][]driven.EmbeddedChunk)}
}

func (m *MockVectorStore) EnsureCollection(ctx context.Context) error { return nil }

func (m *MockVectorStore) UpsertChunks(ctx context.Context, documentID string, chunks []driven.EmbeddedChunk) error {
	if m.UpsertEr != nil {
		return m.UpsertEr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDoc[documentID] = append(m.byDoc[documentID], chunks...)
	return nil
}

func (m *MockVectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byDoc, documentID)
	return nil
}

func (m *MockVectorStore) Health(ctx context.Context) error { return nil }

// Stored returns the chunks upserted for a document.
func (m *MockVectorStore) Stored(documentID string) []driven.EmbeddedChunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byDoc[documentID]
}

// MockStageWorkerClient records dispatches and replies with a canned body.
type MockStageWorkerClient struct {
	mu       sync.Mutex
	Response json.RawMessage
	Err      error

	Triggered []domain.JobType
	Requests  []driven.StageWorkerRequest
}

// NewMockStageWorkerClient creates a client answering with an empty object.
func NewMockStageWorkerClient() *MockStageWorkerClient {
	return &MockStageWorkerClient{Response: json.RawMessage(`{}`)}
}

func (m *MockStageWorkerClient) Trigger(ctx context.Context, stage domain.JobType, req driven.StageWorkerRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Triggered = append(m.Triggered, stage)
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

// MockDistributedLock is a process-local DistributedLock.
type MockDistributedLock struct {
	mu         sync.Mutex
	held       map[string]bool
	AcquireErr error

	// Blocked simulates the lock being held by another instance.
	Blocked bool
}

// NewMockDistributedLock creates a new MockDistributedLock.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{held: make(map[string]bool)}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if m.AcquireErr != nil {
		return false, m.AcquireErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Blocked || m.held[name] {
		return false, nil
	}
	m.held[name] = true
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, name)
	return nil
}

func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	return nil
}
