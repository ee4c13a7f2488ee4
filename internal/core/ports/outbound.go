package ports

import (
	"context"
	"io"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// KnowledgeStore persists items and chunks. The ingestion pipeline is its
// sole writer; CommitItem resolves dedup/supersession atomically under a
// per-locator lock.
type KnowledgeStore interface {
	CreateSubmission(ctx context.Context, item *domain.KnowledgeItem) error
	GetItem(ctx context.Context, id string) (*domain.KnowledgeItem, error)
	MarkRejected(ctx context.Context, id, reason string) error
	CommitItem(ctx context.Context, item *domain.KnowledgeItem, chunks []domain.KnowledgeChunk) (domain.CommitOutcome, error)
}

// ChunkSearcher is the read-only retrieval surface over the store.
type ChunkSearcher interface {
	SearchLexical(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)
	SearchVector(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)
	SearchAuthority(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error)
}

// ObjectStorage stores raw source document bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// EventBus carries ingestion work items and knowledge-change events.
type EventBus interface {
	PublishDocumentSubmitted(ctx context.Context, itemID string) error
	SubscribeDocumentSubmitted(ctx context.Context, handler func(context.Context, string) error) error
	PublishKnowledgeEvent(ctx context.Context, event domain.KnowledgeEvent) error
	SubscribeKnowledgeEvents(ctx context.Context, handler func(context.Context, domain.KnowledgeEvent) error) error
}

// TextExtractor turns raw bytes into plain text with a confidence estimate.
type TextExtractor interface {
	Extract(ctx context.Context, raw domain.RawDocument) (string, float64, error)
}

// EmbeddingProvider builds dense vectors. Embed returns one row per input;
// a row may be nil when that single text failed, without failing the batch.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerSynthesizer drafts a short plausible answer to a query; its
// embedding is used as an additional vector-search probe.
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, question string) (string, error)
}

// OCRProvider recognizes text on a single PDF page. Invoked only for pages
// whose extracted text fails the printable/alphabetic gates.
type OCRProvider interface {
	RecognizePage(ctx context.Context, pdf []byte, page int) (string, error)
}

// WebSearcher is the optional external search source; implementations
// return candidates shaped like chunks with a synthetic source id.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error)
}

// CacheStore persists cache entries and the knowledge epoch.
type CacheStore interface {
	Lookup(ctx context.Context, key string) (*domain.CacheEntry, error)
	SearchSimilar(ctx context.Context, vector []float32, minSimilarity float64, maxAge time.Duration) (*domain.CacheEntry, error)
	Store(ctx context.Context, entry *domain.CacheEntry) error
	DeleteBelowEpoch(ctx context.Context, epoch int64) (int64, error)
	DeleteBySignature(ctx context.Context, signature string) error
	CurrentEpoch(ctx context.Context) (int64, error)
	AdvanceEpoch(ctx context.Context) (int64, error)
}

// GoldenStore persists golden entries; the golden workflow is its sole writer.
type GoldenStore interface {
	FindApprovedBySignature(ctx context.Context, signature string) (*domain.GoldenEntry, error)
	SearchApprovedSimilar(ctx context.Context, vector []float32, limit int) ([]domain.GoldenEntry, []float64, error)
	CreateCandidate(ctx context.Context, entry *domain.GoldenEntry) error
	Publish(ctx context.Context, id string, embedding []float32) error
}
