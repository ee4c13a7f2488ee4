package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
	"github.com/mickgian/pratikoai-kb/internal/core/ports"
)

// GoldenParams govern matching and the candidate workflow.
type GoldenParams struct {
	SimilarityFloor  float64
	AutoPublishScore float64
	ReviewFloor      float64
	SemanticLimit    int
}

// GoldenUseCase serves curated answers ahead of full retrieval and routes
// expert-proposed entries through the trust workflow.
type GoldenUseCase struct {
	store    ports.GoldenStore
	embedder ports.EmbeddingProvider
	bus      ports.EventBus
	params   GoldenParams
	logger   *slog.Logger
}

func NewGoldenUseCase(
	store ports.GoldenStore,
	embedder ports.EmbeddingProvider,
	bus ports.EventBus,
	params GoldenParams,
	logger *slog.Logger,
) *GoldenUseCase {
	if params.SimilarityFloor <= 0 || params.SimilarityFloor > 1 {
		params.SimilarityFloor = 0.90
	}
	if params.AutoPublishScore <= 0 {
		params.AutoPublishScore = 0.85
	}
	if params.ReviewFloor <= 0 {
		params.ReviewFloor = 0.50
	}
	if params.SemanticLimit <= 0 {
		params.SemanticLimit = 5
	}
	return &GoldenUseCase{
		store:    store,
		embedder: embedder,
		bus:      bus,
		params:   params,
		logger:   logger,
	}
}

// Check looks for an approved entry matching the query: exact signature
// first, then the closest approved entry above the similarity floor.
// No match is (nil, nil).
func (uc *GoldenUseCase) Check(ctx context.Context, query string) (*domain.GoldenAnswer, error) {
	normalized := normalizeQuery(query)
	if normalized == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "golden check", errors.New("empty query"))
	}

	entry, err := uc.store.FindApprovedBySignature(ctx, domain.QuerySignature(normalized))
	if err != nil {
		return nil, fmt.Errorf("signature match: %w", err)
	}
	if entry != nil {
		return goldenAnswer(entry, 1.0, true), nil
	}

	vector, err := uc.embedder.EmbedQuery(ctx, normalized)
	if err != nil {
		// Semantic tier is best effort; exact matching already ran.
		if uc.logger != nil {
			uc.logger.Warn("golden semantic tier unavailable", "error", err)
		}
		return nil, nil
	}

	entries, similarities, err := uc.store.SearchApprovedSimilar(ctx, vector, uc.params.SemanticLimit)
	if err != nil {
		return nil, fmt.Errorf("semantic match: %w", err)
	}
	for i := range entries {
		if similarities[i] >= uc.params.SimilarityFloor {
			return goldenAnswer(&entries[i], similarities[i], false), nil
		}
	}
	return nil, nil
}

// Propose records an expert-submitted entry. Its combined trust*quality
// score decides the path: auto-publish, hold for review, or reject.
func (uc *GoldenUseCase) Propose(ctx context.Context, entry domain.GoldenEntry) (*domain.GoldenEntry, error) {
	question := normalizeQuery(entry.Question)
	if question == "" || strings.TrimSpace(entry.Answer) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "golden propose", errors.New("question and answer are required"))
	}

	now := time.Now().UTC()
	entry.ID = uuid.NewString()
	entry.Signature = domain.QuerySignature(question)
	entry.Trust = clamp01(entry.Trust)
	entry.Quality = clamp01(entry.Quality)
	entry.CreatedAt = now
	entry.UpdatedAt = now

	score := entry.Trust * entry.Quality
	switch {
	case score >= uc.params.AutoPublishScore:
		entry.Status = domain.ApprovalPending
	case score >= uc.params.ReviewFloor:
		entry.Status = domain.ApprovalPending
	default:
		entry.Status = domain.ApprovalRejected
	}

	if err := uc.store.CreateCandidate(ctx, &entry); err != nil {
		return nil, fmt.Errorf("create candidate: %w", err)
	}

	if score >= uc.params.AutoPublishScore {
		if err := uc.publish(ctx, &entry, question); err != nil {
			return nil, err
		}
	}
	return &entry, nil
}

// ImportEntries feeds a batch of pre-parsed entries through Propose,
// counting outcomes. One bad row does not stop the batch.
func (uc *GoldenUseCase) ImportEntries(ctx context.Context, entries []domain.GoldenEntry) (published, pending, rejected, failed int, err error) {
	for _, entry := range entries {
		stored, proposeErr := uc.Propose(ctx, entry)
		if proposeErr != nil {
			failed++
			if uc.logger != nil {
				uc.logger.Warn("golden import row failed", "error", proposeErr)
			}
			continue
		}
		switch stored.Status {
		case domain.ApprovalApproved:
			published++
		case domain.ApprovalPending:
			pending++
		default:
			rejected++
		}
	}
	return published, pending, rejected, failed, nil
}

func (uc *GoldenUseCase) publish(ctx context.Context, entry *domain.GoldenEntry, normalizedQuestion string) error {
	vector, err := uc.embedder.EmbedQuery(ctx, normalizedQuestion)
	if err != nil {
		// Publish anyway; the entry stays matchable by signature.
		if uc.logger != nil {
			uc.logger.Warn("publishing golden entry without embedding",
				"entry_id", entry.ID, "error", err)
		}
		vector = nil
	}
	if err := uc.store.Publish(ctx, entry.ID, vector); err != nil {
		return fmt.Errorf("publish entry: %w", err)
	}
	entry.Status = domain.ApprovalApproved
	entry.Embedding = vector

	event := domain.KnowledgeEvent{
		Type:       domain.EventGoldenPublished,
		Signature:  entry.Signature,
		OccurredAt: time.Now().UTC(),
	}
	if err := uc.bus.PublishKnowledgeEvent(ctx, event); err != nil && uc.logger != nil {
		uc.logger.Warn("publish golden event failed",
			"entry_id", entry.ID, "error", err)
	}
	return nil
}

func goldenAnswer(entry *domain.GoldenEntry, similarity float64, exact bool) *domain.GoldenAnswer {
	return &domain.GoldenAnswer{
		EntryID:    entry.ID,
		Question:   entry.Question,
		Answer:     entry.Answer,
		Category:   entry.Category,
		Citations:  entry.Citations,
		Similarity: similarity,
		Exact:      exact,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
