package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ChunkType classifies the structural role of a chunk within a legal text.
type ChunkType string

const (
	ChunkTypeText    ChunkType = "text"
	ChunkTypeArticle ChunkType = "article"
	ChunkTypeTable   ChunkType = "table"
	ChunkTypeHeader  ChunkType = "header"
)

// Chunk is a contiguous, offset-addressed slice of a document's normalized
// text. Offsets index into the owning document's content; for a valid
// document the intervals ordered by Index cover the whole text.
type Chunk struct {
	ID         string    `json:"id,omitempty"`
	DocumentID string    `json:"document_id,omitempty"`
	Index      int       `json:"chunk_index"`
	Type       ChunkType `json:"chunk_type"`
	Text       string    `json:"chunk_text"`
	CharStart  int       `json:"char_start"`
	CharEnd    int       `json:"char_end"`

	// Label is a human-readable locator such as "Art. 1".
	Label   string `json:"label,omitempty"`
	Locator string `json:"locator,omitempty"`

	// Hash fingerprints the chunk text for duplicate detection.
	Hash string `json:"chunk_hash"`

	// Embedded is set once the embed stage has written this chunk's vector.
	Embedded  bool      `json:"embedded,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Length returns the declared interval length of the chunk.
func (c *Chunk) Length() int {
	return c.CharEnd - c.CharStart
}

// HashChunkText computes the content fingerprint used for Chunk.Hash.
func HashChunkText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// LegalDocument is the canonical, persisted unit the pipeline operates on.
// It is produced by merging matched source records (or promoting a single
// unmatched one) and carries the normalized text all chunk offsets address.
type LegalDocument struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	MatchKey    string `json:"match_key,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	DateAdopted string `json:"date_adopted,omitempty"`
	ContentText string `json:"content_text"`

	// Summary and Keywords are filled by the enrich stage.
	Summary  string   `json:"summary,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentWithChunks combines a document with its chunk set.
type DocumentWithChunks struct {
	Document *LegalDocument `json:"document"`
	Chunks   []Chunk        `json:"chunks"`
}
