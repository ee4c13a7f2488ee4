package ports

import (
	"context"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// DocumentIngestor is the inbound contract for accepting raw documents from
// source collectors. Idempotent with respect to locator+fingerprint.
type DocumentIngestor interface {
	Submit(ctx context.Context, raw domain.RawDocument) (*domain.KnowledgeItem, error)
}

// DocumentProcessor runs the offline pipeline for one submitted document.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, itemID string) (*domain.IngestResult, error)
}

// ItemReader is the inbound read model for item metadata/state.
type ItemReader interface {
	GetByID(ctx context.Context, id string) (*domain.KnowledgeItem, error)
}

// ChunkRetriever answers a query with fused-and-boosted candidate chunks.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) (*domain.RetrievalResult, error)
}

// GoldenChecker short-circuits full retrieval with pre-approved answers and
// accepts new candidates from expert feedback, singly or in bulk.
type GoldenChecker interface {
	Check(ctx context.Context, query string) (*domain.GoldenAnswer, error)
	Propose(ctx context.Context, entry domain.GoldenEntry) (*domain.GoldenEntry, error)
	ImportEntries(ctx context.Context, entries []domain.GoldenEntry) (published, pending, rejected, failed int, err error)
}

// AnswerCache is the two-tier query cache in front of the expensive
// retrieval+generation path.
type AnswerCache interface {
	Lookup(ctx context.Context, query string, params domain.CacheParams) (*domain.CachedResult, error)
	Store(ctx context.Context, query string, params domain.CacheParams, payload string) error
}
