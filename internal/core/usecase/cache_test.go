package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

func newTestCache(store *fakeCacheStore, embedder *fakeEmbedder) *AnswerCacheUseCase {
	return NewAnswerCacheUseCase(store, embedder, CacheParams{}, discardLogger())
}

func TestCacheLookupExactHit(t *testing.T) {
	store := newFakeCacheStore()
	uc := newTestCache(store, &fakeEmbedder{})

	params := domain.CacheParams{Model: "llama3", Temperature: 0.2, MaxTokens: 512}
	key := domain.CacheKey("quando scade l'iva", params, store.epoch)
	store.entries[key] = &domain.CacheEntry{Key: key, Payload: "risposta salvata"}

	result, err := uc.Lookup(context.Background(), "  Quando   scade l'IVA ", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatalf("expected hit")
	}
	if result.Semantic {
		t.Fatalf("exact hit flagged semantic")
	}
	if result.Payload != "risposta salvata" || result.Key != key {
		t.Fatalf("result = %+v", result)
	}
}

func TestCacheLookupSemanticHit(t *testing.T) {
	store := newFakeCacheStore()
	store.similar = &domain.CacheEntry{Key: "other-key", Payload: "risposta simile"}
	uc := newTestCache(store, &fakeEmbedder{})

	result, err := uc.Lookup(context.Background(), "scadenza versamento iva", domain.CacheParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.Semantic {
		t.Fatalf("expected semantic hit, got %+v", result)
	}
	if result.Payload != "risposta simile" {
		t.Fatalf("payload = %q", result.Payload)
	}
}

func TestCacheLookupEmbeddingFailureIsMiss(t *testing.T) {
	store := newFakeCacheStore()
	store.similar = &domain.CacheEntry{Key: "k", Payload: "mai servita"}
	uc := newTestCache(store, &fakeEmbedder{queryErr: errors.New("ollama down")})

	result, err := uc.Lookup(context.Background(), "domanda senza hit esatto", domain.CacheParams{})
	if err != nil {
		t.Fatalf("expected graceful miss, got error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected miss, got %+v", result)
	}
}

func TestCacheLookupRejectsEmptyQuery(t *testing.T) {
	uc := newTestCache(newFakeCacheStore(), &fakeEmbedder{})
	_, err := uc.Lookup(context.Background(), "   ", domain.CacheParams{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCacheStoreStampsEntry(t *testing.T) {
	store := newFakeCacheStore()
	store.epoch = 7
	uc := newTestCache(store, &fakeEmbedder{})

	err := uc.Store(context.Background(), "Quando scade l'IVA", domain.CacheParams{Model: "llama3"}, "payload")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.stored) != 1 {
		t.Fatalf("stored %d entries", len(store.stored))
	}
	entry := store.stored[0]
	if entry.Epoch != 7 {
		t.Fatalf("epoch = %d", entry.Epoch)
	}
	if entry.Query != "quando scade l'iva" {
		t.Fatalf("query not normalized: %q", entry.Query)
	}
	if entry.Signature != domain.QuerySignature("quando scade l'iva") {
		t.Fatalf("signature mismatch")
	}
	if entry.Embedding == nil {
		t.Fatalf("embedding missing")
	}
	if entry.Key != domain.CacheKey("quando scade l'iva", domain.CacheParams{Model: "llama3"}, 7) {
		t.Fatalf("key mismatch: %q", entry.Key)
	}
}

func TestCacheStoreSurvivesEmbeddingFailure(t *testing.T) {
	store := newFakeCacheStore()
	uc := newTestCache(store, &fakeEmbedder{queryErr: errors.New("down")})

	if err := uc.Store(context.Background(), "domanda", domain.CacheParams{}, "payload"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.stored) != 1 || store.stored[0].Embedding != nil {
		t.Fatalf("stored = %+v", store.stored)
	}
}

func TestInvalidateForEventAdvancesEpochAndPurges(t *testing.T) {
	store := newFakeCacheStore()
	uc := newTestCache(store, &fakeEmbedder{})

	event := domain.KnowledgeEvent{Type: domain.EventItemActivated, OccurredAt: time.Now()}
	if err := uc.InvalidateForEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.epoch != 2 {
		t.Fatalf("epoch = %d", store.epoch)
	}
	if len(store.deletedBelow) != 1 || store.deletedBelow[0] != 2 {
		t.Fatalf("deleted below = %v", store.deletedBelow)
	}
	if len(store.deletedSigs) != 0 {
		t.Fatalf("item event purged by signature: %v", store.deletedSigs)
	}
}

func TestInvalidateForGoldenPublicationAlsoPurgesSignature(t *testing.T) {
	store := newFakeCacheStore()
	uc := newTestCache(store, &fakeEmbedder{})

	event := domain.KnowledgeEvent{
		Type:      domain.EventGoldenPublished,
		Signature: "sig-abc",
	}
	if err := uc.InvalidateForEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deletedSigs) != 1 || store.deletedSigs[0] != "sig-abc" {
		t.Fatalf("deleted signatures = %v", store.deletedSigs)
	}
}

func TestInvalidateIgnoresNonAffectingEvents(t *testing.T) {
	store := newFakeCacheStore()
	uc := newTestCache(store, &fakeEmbedder{})

	event := domain.KnowledgeEvent{Type: "item_rejected"}
	if err := uc.InvalidateForEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.epoch != 1 || len(store.deletedBelow) != 0 {
		t.Fatalf("non-affecting event mutated cache state")
	}
}

func TestNormalizeQuery(t *testing.T) {
	if got := normalizeQuery("  Due   Parole\tQui "); got != "due parole qui" {
		t.Fatalf("got %q", got)
	}
}
