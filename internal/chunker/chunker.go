// Package chunker splits normalized legal text into an offset-addressed
// chunk set. Documents are cut at article boundaries so every chunk carries
// a citeable label, and oversized articles are re-split at paragraph breaks.
// The produced set is contiguous: chunk N ends exactly where chunk N+1
// starts, and together they cover the whole document.
package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
)

// articlePattern matches the heading line of an article in normalized legal
// text. The capture is the article number, including letter suffixes from
// amendment insertions ("Article 12a").
var articlePattern = regexp.MustCompile(`(?m)^(?:Article|ARTICLE|Art\.)\s+(\d+[a-zA-Z]?)\b`)

// DefaultMaxChunkSize is the character budget per chunk. Articles larger
// than this are re-split at paragraph boundaries.
const DefaultMaxChunkSize = 4000

// Chunker implements article-boundary chunking.
type Chunker struct {
	maxChunkSize int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxChunkSize overrides the per-chunk character budget.
func WithMaxChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChunkSize = n
		}
	}
}

// NewChunker creates a chunker with the default configuration.
func NewChunker(opts ...Option) *Chunker {
	c := &Chunker{maxChunkSize: DefaultMaxChunkSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// section is a half-open [start, end) interval of the source text.
type section struct {
	start, end int
	label      string
	kind       domain.ChunkType
}

// ChunkDocument splits the document at article headings. Text before the
// first article becomes a preamble chunk. Indices are assigned contiguously
// from 0 and offsets always reference the input string, so the result
// passes the chunk integrity audit by construction.
func (c *Chunker) ChunkDocument(text string) ([]domain.Chunk, error) {
	if text == "" {
		return nil, nil
	}

	sections := c.split(text)

	chunks := make([]domain.Chunk, 0, len(sections))
	for _, sec := range sections {
		chunks = append(chunks, domain.Chunk{
			Index:     len(chunks),
			Type:      sec.kind,
			Text:      text[sec.start:sec.end],
			CharStart: sec.start,
			CharEnd:   sec.end,
			Label:     sec.label,
			Hash:      domain.HashChunkText(text[sec.start:sec.end]),
		})
	}
	return chunks, nil
}

func (c *Chunker) split(text string) []section {
	matches := articlePattern.FindAllStringSubmatchIndex(text, -1)

	// Article start offsets, deduplicated and ordered.
	starts := make([]int, 0, len(matches))
	labels := make(map[int]string, len(matches))
	for _, m := range matches {
		if _, seen := labels[m[0]]; seen {
			continue
		}
		starts = append(starts, m[0])
		labels[m[0]] = "Art. " + text[m[2]:m[3]]
	}
	sort.Ints(starts)

	var sections []section
	if len(starts) == 0 || starts[0] > 0 {
		end := len(text)
		if len(starts) > 0 {
			end = starts[0]
		}
		sections = c.appendSized(sections, text, section{start: 0, end: end, kind: domain.ChunkTypeText, label: "Preamble"})
	}

	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		sections = c.appendSized(sections, text, section{
			start: start,
			end:   end,
			kind:  domain.ChunkTypeArticle,
			label: labels[start],
		})
	}

	return sections
}

// appendSized appends sec, re-splitting it at paragraph boundaries when it
// exceeds the chunk budget. Sub-chunks keep the article label with a part
// counter so citations stay usable.
func (c *Chunker) appendSized(sections []section, text string, sec section) []section {
	if sec.end-sec.start <= c.maxChunkSize {
		return append(sections, sec)
	}

	part := 1
	cursor := sec.start
	for cursor < sec.end {
		limit := cursor + c.maxChunkSize
		if limit >= sec.end {
			limit = sec.end
		} else if cut := paragraphCut(text[cursor:limit]); cut > 0 {
			limit = cursor + cut
		}

		label := fmt.Sprintf("%s (part %d)", sec.label, part)
		sections = append(sections, section{start: cursor, end: limit, kind: sec.kind, label: label})
		cursor = limit
		part++
	}
	return sections
}

// paragraphCut returns the offset just past the last blank line in window,
// or 0 when the window has no paragraph break to cut at.
func paragraphCut(window string) int {
	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 2
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx + 1
	}
	return 0
}
