package ports

import "github.com/mickgian/pratikoai-kb/internal/core/domain"

// TextNormalizer canonicalizes extracted text. Implementations must be
// idempotent: Normalize(Normalize(x)) == Normalize(x).
type TextNormalizer interface {
	Normalize(text string) string
}

// ContentValidator gates normalized text before it enters the corpus. A
// rejection is reported as a domain.ErrRejected wrap.
type ContentValidator interface {
	Validate(text string) error
}

// ReferenceParser extracts structured legal citations with their positions.
type ReferenceParser interface {
	Extract(text string) (domain.ReferenceMap, []domain.ReferenceSpan)
}

// ChunkSplitter cuts normalized text into retrieval-sized pieces.
type ChunkSplitter interface {
	Split(text string) []domain.TextChunk
}
