package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

type fakeWebSearcher struct {
	chunks []domain.ScoredChunk
	err    error
}

func (w *fakeWebSearcher) Search(context.Context, string, int) ([]domain.ScoredChunk, error) {
	return w.chunks, w.err
}

func newTestRetriever(searcher *fakeSearcher, embedder *fakeEmbedder, synth *fakeSynthesizer, web *fakeWebSearcher, params RetrievalParams) *RetrieveUseCase {
	// a typed nil must not reach the interface field, the usecase checks == nil
	if web == nil {
		return NewRetrieveUseCase(searcher, embedder, synth, nil, params, discardLogger())
	}
	return NewRetrieveUseCase(searcher, embedder, synth, web, params, discardLogger())
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	uc := newTestRetriever(&fakeSearcher{}, &fakeEmbedder{}, &fakeSynthesizer{}, nil, RetrievalParams{})
	_, err := uc.Retrieve(context.Background(), "   ", 10)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRetrieveFusesAcrossSources(t *testing.T) {
	searcher := &fakeSearcher{
		lexical:   []domain.ScoredChunk{chunk("shared"), chunk("lex-only")},
		vector:    []domain.ScoredChunk{chunk("shared"), chunk("vec-only")},
		authority: []domain.ScoredChunk{chunk("auth-only")},
	}
	uc := newTestRetriever(searcher, &fakeEmbedder{}, &fakeSynthesizer{}, nil, RetrievalParams{})

	result, err := uc.Retrieve(context.Background(), "regime forfettario", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Degraded {
		t.Fatalf("result marked degraded")
	}
	if len(result.Chunks) == 0 {
		t.Fatalf("no chunks returned")
	}
	if result.Chunks[0].ChunkID != "shared" {
		t.Fatalf("multi-source chunk not first: %s", result.Chunks[0].ChunkID)
	}
}

func TestRetrieveSurvivesFailingSources(t *testing.T) {
	searcher := &fakeSearcher{
		lexical:      []domain.ScoredChunk{chunk("a")},
		vectorErr:    errors.New("pgvector down"),
		authorityErr: errors.New("timeout"),
	}
	synth := &fakeSynthesizer{err: errors.New("llm down")}
	uc := newTestRetriever(searcher, &fakeEmbedder{}, synth, nil, RetrievalParams{})

	result, err := uc.Retrieve(context.Background(), "iva ordinaria", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Degraded {
		t.Fatalf("degraded despite one healthy source")
	}
	if len(result.Chunks) != 1 || result.Chunks[0].ChunkID != "a" {
		t.Fatalf("chunks = %+v", result.Chunks)
	}
}

func TestRetrieveMarksDegradedWhenAllSourcesFail(t *testing.T) {
	searcher := &fakeSearcher{
		lexicalErr:   errors.New("db down"),
		vectorErr:    errors.New("db down"),
		authorityErr: errors.New("db down"),
	}
	embedder := &fakeEmbedder{queryErr: errors.New("embedder down")}
	synth := &fakeSynthesizer{err: errors.New("llm down")}
	uc := newTestRetriever(searcher, embedder, synth, nil, RetrievalParams{})

	result, err := uc.Retrieve(context.Background(), "domanda qualsiasi", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded result")
	}
	if len(result.Chunks) != 0 {
		t.Fatalf("degraded result carries chunks: %+v", result.Chunks)
	}
}

func TestRetrieveAppliesBoostsAfterFusion(t *testing.T) {
	plain := chunk("plain")
	plain.SourceID = "blog"
	official := chunk("official")
	official.SourceID = "agenzia_entrate"
	official.DocType = domain.TypeCircular

	// hypothetical is disabled so each chunk appears in exactly one list
	// at rank 0 and the fused base scores tie; only the boosts differ
	searcher := &fakeSearcher{
		lexical: []domain.ScoredChunk{plain},
		vector:  []domain.ScoredChunk{official},
	}
	params := RetrievalParams{
		SourceBoosts: map[string]float64{"agenzia_entrate": 1.5},
		TypeBoosts:   map[string]float64{"circular": 1.2},
	}
	synth := &fakeSynthesizer{err: errors.New("disabled")}
	uc := newTestRetriever(searcher, &fakeEmbedder{}, synth, nil, params)

	result, err := uc.Retrieve(context.Background(), "scadenze versamenti", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Chunks[0].ChunkID != "official" {
		t.Fatalf("boosted chunk not first: %s", result.Chunks[0].ChunkID)
	}
	if result.Chunks[0].Score <= result.Chunks[1].Score {
		t.Fatalf("boost not applied: %v vs %v", result.Chunks[0].Score, result.Chunks[1].Score)
	}
}

func TestRetrieveZeroWeightSilencesSource(t *testing.T) {
	searcher := &fakeSearcher{
		lexical: []domain.ScoredChunk{chunk("muted")},
		vector:  []domain.ScoredChunk{chunk("kept")},
	}
	synth := &fakeSynthesizer{err: errors.New("disabled")}
	uc := newTestRetriever(searcher, &fakeEmbedder{}, synth, nil, RetrievalParams{
		SourceWeights: map[string]float64{"lexical": 0},
	})

	result, err := uc.Retrieve(context.Background(), "acconto irpef", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Degraded {
		t.Fatalf("zero weight marked the result degraded")
	}
	if len(result.Chunks) != 1 || result.Chunks[0].ChunkID != "kept" {
		t.Fatalf("chunks = %+v", result.Chunks)
	}
}

func TestRetrieveIncludesWebSourceWhenConfigured(t *testing.T) {
	web := &fakeWebSearcher{chunks: []domain.ScoredChunk{chunk("web-hit")}}
	searcher := &fakeSearcher{
		lexicalErr:   errors.New("down"),
		vectorErr:    errors.New("down"),
		authorityErr: errors.New("down"),
	}
	synth := &fakeSynthesizer{err: errors.New("down")}
	uc := newTestRetriever(searcher, &fakeEmbedder{}, synth, web, RetrievalParams{
		SourceTimeout: time.Second,
	})

	result, err := uc.Retrieve(context.Background(), "novità fiscali", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Degraded {
		t.Fatalf("web source did not prevent degradation")
	}
	if len(result.Chunks) != 1 || result.Chunks[0].ChunkID != "web-hit" {
		t.Fatalf("chunks = %+v", result.Chunks)
	}
}

func TestRetrieveHonorsTopK(t *testing.T) {
	many := make([]domain.ScoredChunk, 10)
	for i := range many {
		many[i] = chunk(string(rune('a' + i)))
	}
	uc := newTestRetriever(&fakeSearcher{lexical: many}, &fakeEmbedder{}, &fakeSynthesizer{}, nil, RetrievalParams{})

	result, err := uc.Retrieve(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Chunks) != 3 {
		t.Fatalf("topK ignored: got %d chunks", len(result.Chunks))
	}
}
