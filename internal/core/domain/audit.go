package domain

import (
	"math"
	"sort"
)

const (
	// OverlapTolerance is the fraction of the smaller chunk two neighbours
	// may overlap by before the overlap is flagged. Overlaps at or below
	// the tolerance are intentional context overlap.
	OverlapTolerance = 0.15

	// coverageEpsilon is the slack allowed when comparing coverage to 1.
	coverageEpsilon = 0.001
)

// GapViolation records uncovered text between two consecutive chunks.
type GapViolation struct {
	PrevIndex int `json:"prev_index"`
	NextIndex int `json:"next_index"`
	GapSize   int `json:"gap_size"`
}

// OverlapViolation records two consecutive chunks overlapping beyond tolerance.
type OverlapViolation struct {
	PrevIndex    int     `json:"prev_index"`
	NextIndex    int     `json:"next_index"`
	OverlapRatio float64 `json:"overlap_ratio"`
}

// BoundaryViolation records a chunk whose interval escapes the document.
type BoundaryViolation struct {
	Index     int `json:"chunk_index"`
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`
	DocLength int `json:"doc_length"`
}

// ChunkAuditMetrics is the result of auditing one chunk set against its
// document text. It is derived on demand and never persisted as truth.
type ChunkAuditMetrics struct {
	DocumentID string `json:"document_id"`
	Table      string `json:"table"`

	ChunkCount    int     `json:"chunk_count"`
	CoverageRatio float64 `json:"coverage_ratio"`
	CoverageOK    bool    `json:"coverage_ok"`

	GapViolations      []GapViolation      `json:"gap_violations"`
	OverlapViolations  []OverlapViolation  `json:"overlap_violations"`
	BoundaryViolations []BoundaryViolation `json:"boundary_violations"`

	IndexContinuityOK bool     `json:"index_continuity_ok"`
	MissingIndices    []int    `json:"missing_indices"`
	DuplicateHashes   []string `json:"duplicate_hashes"`
	EmptyChunks       []int    `json:"empty_chunks"`
}

// Clean reports whether the chunk set is safe to index: full coverage,
// continuous indices and no structural violations of any kind.
func (m *ChunkAuditMetrics) Clean() bool {
	return m.CoverageOK &&
		m.IndexContinuityOK &&
		len(m.OverlapViolations) == 0 &&
		len(m.BoundaryViolations) == 0 &&
		len(m.DuplicateHashes) == 0 &&
		len(m.EmptyChunks) == 0
}

// ComputeChunkAudit audits a chunk set against the full document text.
// It is pure and total: it never fails, it only reports. An empty chunk set
// yields ChunkCount=0 and CoverageOK=false with no spurious violations.
func ComputeChunkAudit(docID, table, fullText string, chunks []Chunk) ChunkAuditMetrics {
	metrics := ChunkAuditMetrics{
		DocumentID: docID,
		Table:      table,
		ChunkCount: len(chunks),
	}

	docLen := len(fullText)

	if len(chunks) == 0 {
		metrics.IndexContinuityOK = true
		return metrics
	}

	// Input is expected pre-sorted by index, but never assume it.
	sorted := make([]Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	// Index continuity: expected sequence 0..n-1.
	present := make(map[int]bool, len(sorted))
	for i := range sorted {
		present[sorted[i].Index] = true
	}
	for i := 0; i < len(sorted); i++ {
		if !present[i] {
			metrics.MissingIndices = append(metrics.MissingIndices, i)
		}
	}
	metrics.IndexContinuityOK = len(metrics.MissingIndices) == 0

	// Boundary, duplicate and empty-chunk checks.
	hashSeen := make(map[string]int)
	for i := range sorted {
		c := &sorted[i]
		if c.CharStart < 0 || c.CharEnd > docLen {
			metrics.BoundaryViolations = append(metrics.BoundaryViolations, BoundaryViolation{
				Index:     c.Index,
				CharStart: c.CharStart,
				CharEnd:   c.CharEnd,
				DocLength: docLen,
			})
		}
		if c.Hash != "" {
			hashSeen[c.Hash]++
		}
		if c.Text == "" {
			metrics.EmptyChunks = append(metrics.EmptyChunks, c.Index)
		}
	}
	for i := range sorted {
		h := sorted[i].Hash
		if h != "" && hashSeen[h] > 1 {
			metrics.DuplicateHashes = append(metrics.DuplicateHashes, h)
			hashSeen[h] = 0 // report each duplicated hash once
		}
	}

	// Gap/overlap scan over consecutive pairs.
	for i := 1; i < len(sorted); i++ {
		prev, next := &sorted[i-1], &sorted[i]
		delta := next.CharStart - prev.CharEnd
		switch {
		case delta > 0:
			metrics.GapViolations = append(metrics.GapViolations, GapViolation{
				PrevIndex: prev.Index,
				NextIndex: next.Index,
				GapSize:   delta,
			})
		case delta < 0:
			minLen := prev.Length()
			if next.Length() < minLen {
				minLen = next.Length()
			}
			ratio := 1.0
			if minLen > 0 {
				ratio = float64(-delta) / float64(minLen)
			}
			if ratio > OverlapTolerance {
				metrics.OverlapViolations = append(metrics.OverlapViolations, OverlapViolation{
					PrevIndex:    prev.Index,
					NextIndex:    next.Index,
					OverlapRatio: ratio,
				})
			}
		}
	}

	// Coverage: union of intervals clipped to the document, over its length.
	covered := coveredLength(sorted, docLen)
	if docLen > 0 {
		metrics.CoverageRatio = float64(covered) / float64(docLen)
	}
	metrics.CoverageOK = len(metrics.GapViolations) == 0 &&
		math.Abs(metrics.CoverageRatio-1) <= coverageEpsilon

	return metrics
}

// coveredLength merges the chunk intervals, clipped to [0, docLen], and
// returns the total unique covered length.
func coveredLength(sorted []Chunk, docLen int) int {
	type interval struct{ start, end int }
	intervals := make([]interval, 0, len(sorted))
	for i := range sorted {
		start, end := sorted[i].CharStart, sorted[i].CharEnd
		if start < 0 {
			start = 0
		}
		if end > docLen {
			end = docLen
		}
		if end > start {
			intervals = append(intervals, interval{start, end})
		}
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })

	total := 0
	cursor := -1
	for _, iv := range intervals {
		if iv.start > cursor {
			total += iv.end - iv.start
			cursor = iv.end
			continue
		}
		if iv.end > cursor {
			total += iv.end - cursor
			cursor = iv.end
		}
	}
	return total
}
