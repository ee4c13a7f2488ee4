package usecase

import (
	"math"
	"testing"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

func chunk(id string) domain.ScoredChunk {
	return domain.ScoredChunk{ChunkID: id, ItemID: "item-" + id}
}

func TestFuseWeightedRRFScoresByRank(t *testing.T) {
	lists := []rankedList{
		{source: "lexical", weight: 1, chunks: []domain.ScoredChunk{chunk("a"), chunk("b")}},
	}

	out := fuseWeightedRRF(lists, 60)
	if len(out) != 2 {
		t.Fatalf("got %d chunks", len(out))
	}
	if out[0].ChunkID != "a" || out[1].ChunkID != "b" {
		t.Fatalf("order = %s, %s", out[0].ChunkID, out[1].ChunkID)
	}
	if math.Abs(out[0].Score-1.0/61) > 1e-12 {
		t.Fatalf("rank-0 score = %v", out[0].Score)
	}
	if math.Abs(out[1].Score-1.0/62) > 1e-12 {
		t.Fatalf("rank-1 score = %v", out[1].Score)
	}
}

func TestFuseWeightedRRFAccumulatesAcrossSources(t *testing.T) {
	lists := []rankedList{
		{source: "lexical", weight: 1, chunks: []domain.ScoredChunk{chunk("a"), chunk("shared")}},
		{source: "vector", weight: 1, chunks: []domain.ScoredChunk{chunk("shared"), chunk("b")}},
	}

	out := fuseWeightedRRF(lists, 60)
	if out[0].ChunkID != "shared" {
		t.Fatalf("multi-source chunk did not win: %s", out[0].ChunkID)
	}
	want := 1.0/62 + 1.0/61
	if math.Abs(out[0].Score-want) > 1e-12 {
		t.Fatalf("shared score = %v, want %v", out[0].Score, want)
	}
}

func TestFuseWeightedRRFAppliesSourceWeight(t *testing.T) {
	lists := []rankedList{
		{source: "lexical", weight: 1, chunks: []domain.ScoredChunk{chunk("a")}},
		{source: "authority", weight: 3, chunks: []domain.ScoredChunk{chunk("b")}},
	}

	out := fuseWeightedRRF(lists, 60)
	if out[0].ChunkID != "b" {
		t.Fatalf("weighted source lost: %s on top", out[0].ChunkID)
	}
	if math.Abs(out[0].Score-3.0/61) > 1e-12 {
		t.Fatalf("weighted score = %v", out[0].Score)
	}
}

func TestFuseWeightedRRFSkipsNonPositiveWeights(t *testing.T) {
	lists := []rankedList{
		{source: "lexical", weight: 0, chunks: []domain.ScoredChunk{chunk("muted")}},
		{source: "vector", weight: 1, chunks: []domain.ScoredChunk{chunk("kept")}},
	}

	out := fuseWeightedRRF(lists, 60)
	if len(out) != 1 || out[0].ChunkID != "kept" {
		t.Fatalf("zero-weight list contributed: %+v", out)
	}
}

func TestFuseWeightedRRFBreaksTiesByChunkID(t *testing.T) {
	lists := []rankedList{
		{source: "lexical", weight: 1, chunks: []domain.ScoredChunk{chunk("zz")}},
		{source: "vector", weight: 1, chunks: []domain.ScoredChunk{chunk("aa")}},
	}

	out := fuseWeightedRRF(lists, 60)
	if out[0].ChunkID != "aa" || out[1].ChunkID != "zz" {
		t.Fatalf("tie-break order = %s, %s", out[0].ChunkID, out[1].ChunkID)
	}
}

func TestFuseWeightedRRFMergesRicherMetadata(t *testing.T) {
	bare := chunk("c1")
	rich := chunk("c1")
	rich.Text = "testo del frammento"
	rich.Heading = "Articolo 4"
	rich.SourceID = "agenzia_entrate"
	rich.DocType = domain.TypeCircular
	rich.References = domain.ReferenceMap{"articolo": {"4"}}

	lists := []rankedList{
		{source: "authority", weight: 1, chunks: []domain.ScoredChunk{bare}},
		{source: "lexical", weight: 1, chunks: []domain.ScoredChunk{rich}},
	}

	out := fuseWeightedRRF(lists, 60)
	if len(out) != 1 {
		t.Fatalf("got %d chunks", len(out))
	}
	got := out[0]
	if got.Text != rich.Text || got.Heading != rich.Heading ||
		got.SourceID != rich.SourceID || got.DocType != rich.DocType {
		t.Fatalf("metadata not merged: %+v", got)
	}
	if got.References == nil {
		t.Fatalf("references not merged")
	}
}

func TestTrimCandidates(t *testing.T) {
	chunks := []domain.ScoredChunk{chunk("a"), chunk("b"), chunk("c")}
	if got := trimCandidates(chunks, 2); len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got := trimCandidates(chunks, 0); len(got) != 3 {
		t.Fatalf("zero limit trimmed: len = %d", len(got))
	}
	if got := trimCandidates(chunks, 10); len(got) != 3 {
		t.Fatalf("oversized limit changed slice: len = %d", len(got))
	}
}
