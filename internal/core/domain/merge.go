package domain

import "fmt"

// TableLabelPrefix marks chunks merged in from a PDF extraction so
// downstream consumers can distinguish them from primary prose.
const TableLabelPrefix = "[PDF table] "

// MergeSources reconciles two matched extractions of the same legal document
// into one canonical chunk set. The primary (plain-text) source supplies the
// authoritative prose; the secondary (PDF) source supplies only its table
// chunks, the one structural element text extraction cannot recover. All
// other secondary content is dropped as already represented in the prose.
//
// Calling MergeSources on an unmatched pair is a programmer error and
// returns ErrSourcesDoNotMatch; callers are expected to pre-filter with
// FindMatchingPairs.
func MergeSources(primary, secondary *SourceRecord) (*MergedDocument, error) {
	match := MatchSources(primary, secondary)
	if !match.Matched {
		return nil, fmt.Errorf("%w: %q and %q", ErrSourcesDoNotMatch, primary.FileName, secondary.FileName)
	}

	var textChunks []Chunk
	lastTextIndex := -1
	for _, c := range primary.Chunks {
		if c.Type != ChunkTypeText && c.Type != ChunkTypeArticle {
			continue
		}
		textChunks = append(textChunks, c)
		if c.Index > lastTextIndex {
			lastTextIndex = c.Index
		}
	}

	// Retained table chunks continue contiguously after the last text index.
	var tableChunks []Chunk
	nextIndex := lastTextIndex + 1
	for _, c := range secondary.Chunks {
		if c.Type != ChunkTypeTable {
			continue
		}
		c.Index = nextIndex
		c.Label = TableLabelPrefix + c.Label
		tableChunks = append(tableChunks, c)
		nextIndex++
	}

	title := primary.Title
	if title == "" {
		title = secondary.Title
	}

	all := make([]Chunk, 0, len(textChunks)+len(tableChunks))
	all = append(all, textChunks...)
	all = append(all, tableChunks...)

	return &MergedDocument{
		Title:       title,
		TextChunks:  textChunks,
		TableChunks: tableChunks,
		AllChunks:   all,
		Match:       match,
		Sources:     MergedSources{Primary: primary, Secondary: secondary},
	}, nil
}
