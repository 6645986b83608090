package domain

import (
	"strings"
	"time"
)

// SourceRecord represents one extraction pass over one physical file.
// Records are produced by the external extractors and are immutable here;
// the matcher and merger only read them.
type SourceRecord struct {
	SourceKey   string  `json:"source_key"`
	FileName    string  `json:"file_name"`
	MimeType    string  `json:"mime_type"`
	Title       string  `json:"title"`
	ContentText string  `json:"content_text"`
	SourceURL   string  `json:"source_url,omitempty"`
	DateAdopted string  `json:"date_adopted,omitempty"`
	Chunks      []Chunk `json:"chunks"`

	CreatedAt time.Time `json:"created_at,omitempty"`

	// MergedAt is set once the record has been consumed into a canonical
	// document, so the merge backlog does not pick it up again.
	MergedAt *time.Time `json:"merged_at,omitempty"`
}

// IsPDF reports whether this record came from a PDF extraction pass.
func (s *SourceRecord) IsPDF() bool {
	return strings.EqualFold(s.MimeType, "application/pdf") ||
		strings.HasSuffix(strings.ToLower(s.FileName), ".pdf")
}

// MergedSources references the two records a merged document was built from.
type MergedSources struct {
	Primary   *SourceRecord `json:"primary"`
	Secondary *SourceRecord `json:"secondary"`
}

// MergedDocument is the canonical chunk set reconciled from two matched
// extractions of the same legal document. Text chunks come from the primary
// (plain-text) source, table chunks from the secondary (PDF) source.
type MergedDocument struct {
	Title       string        `json:"title"`
	TextChunks  []Chunk       `json:"text_chunks"`
	TableChunks []Chunk       `json:"table_chunks"`
	AllChunks   []Chunk       `json:"all_chunks"`
	Match       MatchResult   `json:"match"`
	Sources     MergedSources `json:"sources"`
}
