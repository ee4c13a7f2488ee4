package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
	"github.com/mickgian/pratikoai-kb/internal/core/ports"
)

// CacheParams are the freshness and similarity knobs for the answer cache.
type CacheParams struct {
	SimilarityFloor float64
	MaxAge          time.Duration
}

// AnswerCacheUseCase is the two-tier cache in front of retrieval+generation.
// Tier 1 is an exact key over the normalized query, decoding parameters and
// the knowledge epoch; tier 2 is a semantic match over query embeddings at
// the current epoch only. Knowledge events advance the epoch, which orphans
// every older entry at lookup time before any deletion runs.
type AnswerCacheUseCase struct {
	cache    ports.CacheStore
	embedder ports.EmbeddingProvider
	params   CacheParams
	logger   *slog.Logger
}

func NewAnswerCacheUseCase(
	cache ports.CacheStore,
	embedder ports.EmbeddingProvider,
	params CacheParams,
	logger *slog.Logger,
) *AnswerCacheUseCase {
	if params.SimilarityFloor <= 0 || params.SimilarityFloor > 1 {
		params.SimilarityFloor = 0.95
	}
	if params.MaxAge <= 0 {
		params.MaxAge = 72 * time.Hour
	}
	return &AnswerCacheUseCase{
		cache:    cache,
		embedder: embedder,
		params:   params,
		logger:   logger,
	}
}

func (uc *AnswerCacheUseCase) Lookup(ctx context.Context, query string, params domain.CacheParams) (*domain.CachedResult, error) {
	normalized := normalizeQuery(query)
	if normalized == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "cache lookup", errors.New("empty query"))
	}

	epoch, err := uc.cache.CurrentEpoch(ctx)
	if err != nil {
		return nil, fmt.Errorf("current epoch: %w", err)
	}

	key := domain.CacheKey(normalized, params, epoch)
	entry, err := uc.cache.Lookup(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("exact lookup: %w", err)
	}
	if entry != nil {
		return &domain.CachedResult{Payload: entry.Payload, Key: entry.Key, Semantic: false}, nil
	}

	// Tier 2 is best effort: an embedding failure degrades to a miss.
	vector, err := uc.embedder.EmbedQuery(ctx, normalized)
	if err != nil {
		if uc.logger != nil {
			uc.logger.Warn("cache semantic tier unavailable", "error", err)
		}
		return nil, nil
	}
	entry, err = uc.cache.SearchSimilar(ctx, vector, uc.params.SimilarityFloor, uc.params.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("similarity lookup: %w", err)
	}
	if entry == nil {
		return nil, nil
	}
	return &domain.CachedResult{Payload: entry.Payload, Key: entry.Key, Semantic: true}, nil
}

func (uc *AnswerCacheUseCase) Store(ctx context.Context, query string, params domain.CacheParams, payload string) error {
	normalized := normalizeQuery(query)
	if normalized == "" {
		return domain.WrapError(domain.ErrInvalidInput, "cache store", errors.New("empty query"))
	}

	epoch, err := uc.cache.CurrentEpoch(ctx)
	if err != nil {
		return fmt.Errorf("current epoch: %w", err)
	}

	now := time.Now().UTC()
	entry := &domain.CacheEntry{
		Key:          domain.CacheKey(normalized, params, epoch),
		Query:        normalized,
		Signature:    domain.QuerySignature(normalized),
		Payload:      payload,
		Epoch:        epoch,
		CreatedAt:    now,
		LastAccessAt: now,
	}

	if vector, err := uc.embedder.EmbedQuery(ctx, normalized); err == nil {
		entry.Embedding = vector
	} else if uc.logger != nil {
		uc.logger.Warn("caching without embedding", "error", err)
	}

	if err := uc.cache.Store(ctx, entry); err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// InvalidateForEvent reacts to a knowledge event. Answer-affecting events
// advance the epoch and purge entries stranded below it; a golden
// publication additionally drops the exact entry for its question.
func (uc *AnswerCacheUseCase) InvalidateForEvent(ctx context.Context, event domain.KnowledgeEvent) error {
	if !event.AnswerAffecting() {
		return nil
	}

	epoch, err := uc.cache.AdvanceEpoch(ctx)
	if err != nil {
		return fmt.Errorf("advance epoch: %w", err)
	}
	dropped, err := uc.cache.DeleteBelowEpoch(ctx, epoch)
	if err != nil {
		return fmt.Errorf("purge stale entries: %w", err)
	}

	if event.Type == domain.EventGoldenPublished && event.Signature != "" {
		if err := uc.cache.DeleteBySignature(ctx, event.Signature); err != nil {
			return fmt.Errorf("purge by signature: %w", err)
		}
	}

	if uc.logger != nil {
		uc.logger.Info("cache invalidated",
			"event", string(event.Type), "epoch", epoch, "dropped", dropped)
	}
	return nil
}

// normalizeQuery folds case and whitespace so textual noise does not split
// the cache key space.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(query))), " ")
}
