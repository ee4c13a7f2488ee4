package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
	"github.com/mickgian/pratikoai-kb/internal/core/ports"
)

// RetrievalParams are the fusion and fan-out knobs, mapped from the tuning
// file at startup.
type RetrievalParams struct {
	FusionK       int
	SourceWeights map[string]float64
	SourceBoosts  map[string]float64
	TypeBoosts    map[string]float64
	SourceTimeout time.Duration
	PerSource     int
	DefaultTopK   int
}

const (
	sourceLexical      = "lexical"
	sourceVector       = "vector"
	sourceHypothetical = "hypothetical"
	sourceAuthority    = "authority"
	sourceWeb          = "web"
)

type RetrieveUseCase struct {
	searcher    ports.ChunkSearcher
	embedder    ports.EmbeddingProvider
	synthesizer ports.AnswerSynthesizer
	web         ports.WebSearcher
	params      RetrievalParams
	logger      *slog.Logger
}

// NewRetrieveUseCase wires the fan-out retriever. web may be nil; the web
// source is then skipped entirely.
func NewRetrieveUseCase(
	searcher ports.ChunkSearcher,
	embedder ports.EmbeddingProvider,
	synthesizer ports.AnswerSynthesizer,
	web ports.WebSearcher,
	params RetrievalParams,
	logger *slog.Logger,
) *RetrieveUseCase {
	if params.FusionK <= 0 {
		params.FusionK = 60
	}
	if params.SourceTimeout <= 0 {
		params.SourceTimeout = 2500 * time.Millisecond
	}
	if params.PerSource <= 0 {
		params.PerSource = 40
	}
	if params.DefaultTopK <= 0 {
		params.DefaultTopK = 25
	}
	// absent weights become uniform; an explicit zero silences the source
	weights := make(map[string]float64, len(params.SourceWeights))
	for source, weight := range params.SourceWeights {
		weights[source] = weight
	}
	for _, source := range []string{sourceLexical, sourceVector, sourceHypothetical, sourceAuthority, sourceWeb} {
		if _, ok := weights[source]; !ok {
			weights[source] = 1
		}
	}
	params.SourceWeights = weights
	return &RetrieveUseCase{
		searcher:    searcher,
		embedder:    embedder,
		synthesizer: synthesizer,
		web:         web,
		params:      params,
		logger:      logger,
	}
}

// Retrieve fans the query out to every configured source concurrently, each
// under its own timeout, then fuses and boosts whatever came back. A failed
// source contributes nothing; only when every source fails is the result
// marked degraded.
func (uc *RetrieveUseCase) Retrieve(ctx context.Context, query string, topK int) (*domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("empty query"))
	}
	if topK <= 0 {
		topK = uc.params.DefaultTopK
	}

	type sourceResult struct {
		source string
		chunks []domain.ScoredChunk
		err    error
	}

	runners := map[string]func(context.Context) ([]domain.ScoredChunk, error){
		sourceLexical:      uc.runLexical(query),
		sourceVector:       uc.runVector(query),
		sourceHypothetical: uc.runHypothetical(query),
		sourceAuthority:    uc.runAuthority(query),
	}
	if uc.web != nil {
		runners[sourceWeb] = uc.runWeb(query)
	}

	results := make(chan sourceResult, len(runners))
	var wg sync.WaitGroup
	for name, run := range runners {
		wg.Add(1)
		go func(name string, run func(context.Context) ([]domain.ScoredChunk, error)) {
			defer wg.Done()
			sourceCtx, cancel := context.WithTimeout(ctx, uc.params.SourceTimeout)
			defer cancel()
			chunks, err := run(sourceCtx)
			results <- sourceResult{source: name, chunks: chunks, err: err}
		}(name, run)
	}
	wg.Wait()
	close(results)

	var lists []rankedList
	failed := 0
	total := 0
	for res := range results {
		total++
		if res.err != nil {
			failed++
			if uc.logger != nil {
				uc.logger.Warn("retrieval source failed",
					"source", res.source, "error", res.err)
			}
			continue
		}
		lists = append(lists, rankedList{
			source: res.source,
			weight: uc.params.SourceWeights[res.source],
			chunks: res.chunks,
		})
	}

	if failed == total {
		return &domain.RetrievalResult{Degraded: true}, nil
	}

	fused := fuseWeightedRRF(lists, uc.params.FusionK)
	uc.applyBoosts(fused)
	return &domain.RetrievalResult{Chunks: trimCandidates(fused, topK)}, nil
}

func (uc *RetrieveUseCase) runLexical(query string) func(context.Context) ([]domain.ScoredChunk, error) {
	return func(ctx context.Context) ([]domain.ScoredChunk, error) {
		return uc.searcher.SearchLexical(ctx, query, uc.params.PerSource, domain.SearchFilter{})
	}
}

func (uc *RetrieveUseCase) runVector(query string) func(context.Context) ([]domain.ScoredChunk, error) {
	return func(ctx context.Context) ([]domain.ScoredChunk, error) {
		vector, err := uc.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return uc.searcher.SearchVector(ctx, vector, uc.params.PerSource, domain.SearchFilter{})
	}
}

// runHypothetical drafts a plausible answer and searches near its embedding;
// answers live closer to answer-shaped text than to question-shaped text.
func (uc *RetrieveUseCase) runHypothetical(query string) func(context.Context) ([]domain.ScoredChunk, error) {
	return func(ctx context.Context) ([]domain.ScoredChunk, error) {
		draft, err := uc.synthesizer.Synthesize(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("synthesize hypothetical: %w", err)
		}
		vector, err := uc.embedder.EmbedQuery(ctx, draft)
		if err != nil {
			return nil, fmt.Errorf("embed hypothetical: %w", err)
		}
		return uc.searcher.SearchVector(ctx, vector, uc.params.PerSource, domain.SearchFilter{})
	}
}

func (uc *RetrieveUseCase) runAuthority(query string) func(context.Context) ([]domain.ScoredChunk, error) {
	return func(ctx context.Context) ([]domain.ScoredChunk, error) {
		return uc.searcher.SearchAuthority(ctx, query, uc.params.PerSource)
	}
}

func (uc *RetrieveUseCase) runWeb(query string) func(context.Context) ([]domain.ScoredChunk, error) {
	return func(ctx context.Context) ([]domain.ScoredChunk, error) {
		return uc.web.Search(ctx, query, uc.params.PerSource)
	}
}

// applyBoosts multiplies fused scores by source and document-type factors,
// then restores score ordering.
func (uc *RetrieveUseCase) applyBoosts(chunks []domain.ScoredChunk) {
	for i := range chunks {
		if boost, ok := uc.params.SourceBoosts[chunks[i].SourceID]; ok {
			chunks[i].Score *= boost
		}
		if boost, ok := uc.params.TypeBoosts[string(chunks[i].DocType)]; ok {
			chunks[i].Score *= boost
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
}
