package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven/mocks"
	"github.com/datalex-labs/datalex-core/internal/core/services"
)

// windowChunker splits text into fixed-width contiguous windows.
type windowChunker struct {
	width int
}

func (c windowChunker) ChunkDocument(text string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for start := 0; start < len(text); start += c.width {
		end := start + c.width
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, domain.Chunk{
			Index:     len(chunks),
			Type:      domain.ChunkTypeText,
			Text:      text[start:end],
			CharStart: start,
			CharEnd:   end,
		})
	}
	return chunks, nil
}

type serverFixture struct {
	server    *Server
	jobs      *mocks.MockJobStore
	documents *mocks.MockDocumentStore
	chunks    *mocks.MockChunkStore
	sources   *mocks.MockSourceStore
	worker    *mocks.MockStageWorkerClient
}

func newServerFixture(t *testing.T, internalKeys ...string) *serverFixture {
	t.Helper()

	jobs := mocks.NewMockJobStore()
	documents := mocks.NewMockDocumentStore()
	chunks := mocks.NewMockChunkStore()
	sources := mocks.NewMockSourceStore()
	worker := mocks.NewMockStageWorkerClient()

	orchestrator := services.NewOrchestrator(services.OrchestratorConfig{
		JobStore:     jobs,
		WorkerClient: worker,
	})
	stageRunner := services.NewStageRunner(services.StageRunnerConfig{
		JobStore:      jobs,
		DocumentStore: documents,
		ChunkStore:    chunks,
		Chunker:       windowChunker{width: 40},
		Embedder:      mocks.NewMockEmbedder(4),
		Enricher:      mocks.NewMockEnricher(),
		VectorStore:   mocks.NewMockVectorStore(),
	})
	ingest := services.NewIngest(services.IngestConfig{
		SourceStore:   sources,
		DocumentStore: documents,
		ChunkStore:    chunks,
		JobStore:      jobs,
	})

	cfg := DefaultConfig()
	cfg.InternalKeys = internalKeys
	server := NewServer(cfg, orchestrator, stageRunner, ingest, jobs, documents, jobs, nil)

	return &serverFixture{
		server:    server,
		jobs:      jobs,
		documents: documents,
		chunks:    chunks,
		sources:   sources,
		worker:    worker,
	}
}

func (f *serverFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do("GET", "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleReady(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do("GET", "/ready", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleVersion(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do("GET", "/version", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"version":"dev"}`, rec.Body.String())
}

func TestInternalRoutesRequireKey(t *testing.T) {
	f := newServerFixture(t, "secret")

	rec := f.do("POST", "/internal/pipeline/tick", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("POST", "/internal/pipeline/tick", strings.NewReader(""))
	req.Header.Set("X-Internal-Key", "secret")
	authed := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(authed, req)
	assert.Equal(t, http.StatusOK, authed.Code)
}

func TestHandleTickIdle(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do("POST", "/internal/pipeline/tick", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		StageTriggered string `json:"stage_triggered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "idle", result.StageTriggered)
	assert.Empty(t, f.worker.Triggered)
}

func TestHandleTickDispatches(t *testing.T) {
	f := newServerFixture(t)
	f.jobs.Seed(domain.NewPipelineJob("doc-1", domain.JobTypeEmbed))

	rec := f.do("POST", "/internal/pipeline/tick", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		StageTriggered string `json:"stage_triggered"`
		EmbedPending   int64  `json:"embed_pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "embed", result.StageTriggered)
	assert.Equal(t, int64(1), result.EmbedPending)
	require.Len(t, f.worker.Triggered, 1)
	assert.Equal(t, domain.JobTypeEmbed, f.worker.Triggered[0])
}

func TestHandlePipelineStats(t *testing.T) {
	f := newServerFixture(t)
	f.jobs.Seed(domain.NewPipelineJob("doc-1", domain.JobTypeChunk))
	f.jobs.Seed(domain.NewPipelineJob("doc-2", domain.JobTypeChunk))

	rec := f.do("GET", "/internal/pipeline/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats PipelineStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.Stages["chunk"].Ready)
	assert.Equal(t, int64(0), stats.Stages["embed"].Ready)
	assert.Equal(t, int64(0), stats.Stages["enrich"].Ready)
}

func TestHandleStageWorkerChunk(t *testing.T) {
	f := newServerFixture(t)

	doc := &domain.LegalDocument{
		ID:          "doc-1",
		Title:       "On General Provisions",
		ContentText: strings.Repeat("The provisions of this law apply everywhere. ", 4),
	}
	require.NoError(t, f.documents.Save(context.Background(), doc))
	f.jobs.Seed(domain.NewPipelineJob("doc-1", domain.JobTypeChunk))

	rec := f.do("POST", "/internal/workers/chunk", StageWorkerBody{ConcurrencyDocs: 5})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Stage     string `json:"stage"`
		Claimed   int    `json:"claimed"`
		Processed int    `json:"processed"`
		Failed    int    `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "chunk", result.Stage)
	assert.Equal(t, 1, result.Claimed)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Failed)

	stored, err := f.chunks.GetByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
}

func TestHandleStageWorkerEmptyBody(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do("POST", "/internal/workers/embed", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Claimed int `json:"claimed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Claimed)
}

func TestHandleStageWorkerUnknownStage(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do("POST", "/internal/workers/shred", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown stage")
}

func TestHandleRegisterSource(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do("POST", "/internal/sources", domain.SourceRecord{
		SourceKey:   "src-1",
		FileName:    "arlis_id_42.txt",
		Title:       "On General Provisions",
		ContentText: "Article 1. Scope.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	stored, err := f.sources.Get(context.Background(), "src-1")
	require.NoError(t, err)
	assert.Equal(t, "On General Provisions", stored.Title)
}

func TestHandleRegisterSourceInvalid(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do("POST", "/internal/sources", domain.SourceRecord{SourceKey: "src-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRegisterSourceDuplicate(t *testing.T) {
	f := newServerFixture(t)

	rec := domain.SourceRecord{
		SourceKey:   "src-1",
		FileName:    "law.txt",
		ContentText: "Article 1. Scope.",
	}
	first := f.do("POST", "/internal/sources", rec)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do("POST", "/internal/sources", rec)
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestHandleRegisterSourceBadJSON(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest("POST", "/internal/sources", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMerge(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do("POST", "/internal/merge", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		SourcesExamined int `json:"sources_examined"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 0, report.SourcesExamined)
}

func TestHandleGetDocument(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, f.documents.Save(context.Background(), &domain.LegalDocument{
		ID:    "doc-1",
		Title: "On General Provisions",
	}))

	rec := f.do("GET", "/internal/documents/doc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "On General Provisions")

	missing := f.do("GET", "/internal/documents/nope", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestHandleAuditDocument(t *testing.T) {
	f := newServerFixture(t)

	text := "Article 1. Scope of this law."
	require.NoError(t, f.documents.Save(context.Background(), &domain.LegalDocument{
		ID:          "doc-1",
		ContentText: text,
	}))
	require.NoError(t, f.chunks.ReplaceForDocument(context.Background(), "doc-1", []domain.Chunk{
		{
			ID:         "c-1",
			DocumentID: "doc-1",
			Index:      0,
			Type:       domain.ChunkTypeText,
			Text:       text,
			CharStart:  0,
			CharEnd:    len(text),
			Hash:       domain.HashChunkText(text),
		},
	}))

	rec := f.do("GET", "/internal/documents/doc-1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics domain.ChunkAuditMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.InDelta(t, 1.0, metrics.CoverageRatio, 0.001)
	assert.True(t, metrics.Clean())
}

func TestHandleAuditDocumentNotFound(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do("GET", "/internal/documents/nope/audit", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListJobsBadStage(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do("GET", "/internal/pipeline/jobs?stage=shred", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListJobsFilters(t *testing.T) {
	f := newServerFixture(t)
	f.jobs.Seed(domain.NewPipelineJob("doc-1", domain.JobTypeChunk))
	f.jobs.Seed(domain.NewPipelineJob("doc-2", domain.JobTypeEmbed))

	rec := f.do("GET", "/internal/pipeline/jobs?stage=chunk", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []domain.PipelineJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "doc-1", jobs[0].DocumentID)
}
