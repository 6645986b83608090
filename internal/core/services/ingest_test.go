package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven/mocks"
)

type ingestFixture struct {
	sources   *mocks.MockSourceStore
	documents *mocks.MockDocumentStore
	chunks    *mocks.MockChunkStore
	jobs      *mocks.MockJobStore
	svc       *Ingest
}

func newIngestFixture(promoteAfter time.Duration) *ingestFixture {
	f := &ingestFixture{
		sources:   mocks.NewMockSourceStore(),
		documents: mocks.NewMockDocumentStore(),
		chunks:    mocks.NewMockChunkStore(),
		jobs:      mocks.NewMockJobStore(),
	}
	f.svc = NewIngest(IngestConfig{
		SourceStore:   f.sources,
		DocumentStore: f.documents,
		ChunkStore:    f.chunks,
		JobStore:      f.jobs,
		PromoteAfter:  promoteAfter,
	})
	return f
}

func textSource(key, arlisID string) *domain.SourceRecord {
	text := "Article 1. General provisions. Article 2. Final provisions."
	return &domain.SourceRecord{
		SourceKey:   key,
		FileName:    "arlis_id_" + arlisID + ".txt",
		MimeType:    "text/plain",
		Title:       "On General Provisions",
		ContentText: text,
		DateAdopted: "2024-03-15",
		Chunks: []domain.Chunk{
			{Index: 0, Type: domain.ChunkTypeArticle, Text: text[:30], CharStart: 0, CharEnd: 30, Label: "Art. 1"},
			{Index: 1, Type: domain.ChunkTypeArticle, Text: text[30:], CharStart: 30, CharEnd: len(text), Label: "Art. 2"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func pdfSource(key, arlisID string) *domain.SourceRecord {
	return &domain.SourceRecord{
		SourceKey:   key,
		FileName:    "arlis_id_" + arlisID + ".pdf",
		MimeType:    "application/pdf",
		Title:       "On General Provisions",
		ContentText: "pdf extracted text",
		DateAdopted: "2024-03-15",
		Chunks: []domain.Chunk{
			{Index: 0, Type: domain.ChunkTypeHeader, Text: "ON GENERAL PROVISIONS", Label: "header"},
			{Index: 1, Type: domain.ChunkTypeTable, Text: "rate | 10%", Label: "Annex table"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestRegisterSourceValidation(t *testing.T) {
	f := newIngestFixture(0)
	ctx := context.Background()

	err := f.svc.RegisterSource(ctx, &domain.SourceRecord{FileName: "a.txt", ContentText: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = f.svc.RegisterSource(ctx, &domain.SourceRecord{SourceKey: "k", ContentText: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = f.svc.RegisterSource(ctx, &domain.SourceRecord{SourceKey: "k", FileName: "a.txt"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegisterSourceSetsCreatedAt(t *testing.T) {
	f := newIngestFixture(0)
	rec := &domain.SourceRecord{SourceKey: "k", FileName: "a.txt", ContentText: "body"}

	require.NoError(t, f.svc.RegisterSource(context.Background(), rec))
	assert.False(t, rec.CreatedAt.IsZero())

	stored, err := f.sources.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", stored.FileName)
}

func TestMergeBacklogMergesMatchedPair(t *testing.T) {
	f := newIngestFixture(0)
	ctx := context.Background()

	require.NoError(t, f.sources.Save(ctx, textSource("src-text", "4242")))
	require.NoError(t, f.sources.Save(ctx, pdfSource("src-pdf", "4242")))

	report, err := f.svc.MergeBacklog(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.SourcesExamined)
	assert.Equal(t, 1, report.PairsMatched)
	assert.Equal(t, 1, report.DocumentsMerged)
	assert.Empty(t, report.Errors)

	doc, err := f.documents.GetByMatchKey(ctx, "arlis:4242")
	require.NoError(t, err)
	assert.Equal(t, "On General Provisions", doc.Title)
	assert.Contains(t, doc.ContentText, "Article 1")

	stored, err := f.chunks.GetByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3, "two article chunks plus one table chunk")

	last := stored[len(stored)-1]
	assert.Equal(t, 2, last.Index)
	assert.Equal(t, domain.ChunkTypeTable, last.Type)
	assert.True(t, strings.HasPrefix(last.Label, domain.TableLabelPrefix))

	// Extraction already chunked the document, so the pipeline starts at embed.
	jobs := f.jobs.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobTypeEmbed, jobs[0].Type)
	assert.Equal(t, doc.ID, jobs[0].DocumentID)

	unmerged, err := f.sources.ListUnmerged(ctx)
	require.NoError(t, err)
	assert.Empty(t, unmerged, "both sources must be consumed")
}

func TestMergeBacklogIsIdempotent(t *testing.T) {
	f := newIngestFixture(0)
	ctx := context.Background()

	require.NoError(t, f.sources.Save(ctx, textSource("src-text", "7")))
	require.NoError(t, f.sources.Save(ctx, pdfSource("src-pdf", "7")))

	first, err := f.svc.MergeBacklog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.DocumentsMerged)

	second, err := f.svc.MergeBacklog(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.SourcesExamined)
	assert.Zero(t, second.DocumentsMerged)

	docs, err := f.documents.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestMergeBacklogSameKindGroupWaits(t *testing.T) {
	f := newIngestFixture(0)
	ctx := context.Background()

	a := pdfSource("pdf-a", "99")
	b := pdfSource("pdf-b", "99")
	require.NoError(t, f.sources.Save(ctx, a))
	require.NoError(t, f.sources.Save(ctx, b))

	report, err := f.svc.MergeBacklog(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.PairsMatched)
	assert.Zero(t, report.DocumentsMerged)

	unmerged, err := f.sources.ListUnmerged(ctx)
	require.NoError(t, err)
	assert.Len(t, unmerged, 2, "unusable group stays in the backlog")
}

func TestMergeBacklogPromotesStaleSource(t *testing.T) {
	f := newIngestFixture(24 * time.Hour)
	ctx := context.Background()

	rec := textSource("lonely", "555")
	rec.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, f.sources.Save(ctx, rec))

	report, err := f.svc.MergeBacklog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Promoted)

	doc, err := f.documents.GetByMatchKey(ctx, "arlis:555")
	require.NoError(t, err)
	assert.Equal(t, "On General Provisions", doc.Title)

	stored, err := f.chunks.GetByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	jobs := f.jobs.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobTypeEmbed, jobs[0].Type)

	unmerged, err := f.sources.ListUnmerged(ctx)
	require.NoError(t, err)
	assert.Empty(t, unmerged)
}

func TestMergeBacklogPromotedSourceWithoutChunksStartsAtChunkStage(t *testing.T) {
	f := newIngestFixture(24 * time.Hour)
	ctx := context.Background()

	rec := &domain.SourceRecord{
		SourceKey:   "raw",
		FileName:    "decree.txt",
		Title:       "On Decrees",
		ContentText: "Decree body.",
		CreatedAt:   time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, f.sources.Save(ctx, rec))

	report, err := f.svc.MergeBacklog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Promoted)

	doc, err := f.documents.GetByMatchKey(ctx, "source:raw")
	require.NoError(t, err)

	jobs := f.jobs.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobTypeChunk, jobs[0].Type)
	assert.Equal(t, doc.ID, jobs[0].DocumentID)
}

func TestMergeBacklogKeepsFreshUnmatchedSource(t *testing.T) {
	f := newIngestFixture(24 * time.Hour)
	ctx := context.Background()

	require.NoError(t, f.sources.Save(ctx, textSource("fresh", "1")))

	report, err := f.svc.MergeBacklog(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Promoted)

	unmerged, err := f.sources.ListUnmerged(ctx)
	require.NoError(t, err)
	assert.Len(t, unmerged, 1)
}

func TestAuditDocument(t *testing.T) {
	f := newIngestFixture(0)
	ctx := context.Background()

	text := "0123456789"
	require.NoError(t, f.documents.Save(ctx, &domain.LegalDocument{ID: "doc-1", ContentText: text}))
	require.NoError(t, f.chunks.ReplaceForDocument(ctx, "doc-1", []domain.Chunk{
		{ID: "c-0", Index: 0, Text: text[:5], CharStart: 0, CharEnd: 5},
		{ID: "c-1", Index: 1, Text: text[5:], CharStart: 5, CharEnd: 10},
	}))

	metrics, err := f.svc.AuditDocument(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, 2, metrics.ChunkCount)
	assert.True(t, metrics.Clean())
	assert.InDelta(t, 1.0, metrics.CoverageRatio, 0.001)
}

func TestAuditDocumentNotFound(t *testing.T) {
	f := newIngestFixture(0)

	_, err := f.svc.AuditDocument(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
