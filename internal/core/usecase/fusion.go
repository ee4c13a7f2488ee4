package usecase

import (
	"sort"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// rankedList is one retrieval source's candidates in source rank order,
// with the weight its ranks contribute to the fused score.
type rankedList struct {
	source string
	weight float64
	chunks []domain.ScoredChunk
}

type fusedCandidate struct {
	chunk domain.ScoredChunk
	score float64
}

// fuseWeightedRRF merges ranked lists with weighted reciprocal rank fusion:
// each appearance contributes weight/(k+rank+1). A list with a non-positive
// weight contributes nothing. Determinism: equal scores break ties by
// chunk id.
func fuseWeightedRRF(lists []rankedList, k int) []domain.ScoredChunk {
	if k <= 0 {
		k = 60
	}

	acc := make(map[string]fusedCandidate)
	for _, list := range lists {
		weight := list.weight
		if weight <= 0 {
			continue
		}
		for rank, chunk := range list.chunks {
			candidate := acc[chunk.ChunkID]
			candidate.chunk = preferRicherChunk(candidate.chunk, chunk)
			candidate.score += weight / float64(k+rank+1)
			acc[chunk.ChunkID] = candidate
		}
	}

	out := make([]domain.ScoredChunk, 0, len(acc))
	for _, c := range acc {
		chunk := c.chunk
		chunk.Score = c.score
		out = append(out, chunk)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func trimCandidates(chunks []domain.ScoredChunk, limit int) []domain.ScoredChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func preferRicherChunk(current, candidate domain.ScoredChunk) domain.ScoredChunk {
	if current.ChunkID == "" {
		return candidate
	}
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.Heading == "" && candidate.Heading != "" {
		current.Heading = candidate.Heading
	}
	if current.SourceID == "" && candidate.SourceID != "" {
		current.SourceID = candidate.SourceID
	}
	if (current.DocType == "" || current.DocType == domain.TypeUnknown) &&
		candidate.DocType != "" && candidate.DocType != domain.TypeUnknown {
		current.DocType = candidate.DocType
	}
	if current.References == nil && candidate.References != nil {
		current.References = candidate.References
	}
	return current
}
