package domain

// ScoredChunk is a retrieval candidate. Score carries the source-native
// score before fusion and the fused-and-boosted score afterwards.
type ScoredChunk struct {
	ChunkID    string       `json:"chunk_id"`
	ItemID     string       `json:"item_id"`
	Position   int          `json:"position"`
	Text       string       `json:"text"`
	Heading    string       `json:"heading,omitempty"`
	SourceID   string       `json:"source_id"`
	DocType    DocumentType `json:"doc_type"`
	References ReferenceMap `json:"references,omitempty"`
	Score      float64      `json:"score"`
}

// RetrievalResult is the fused top-N context for a query. Degraded is set
// when every retrieval source failed or timed out; the caller may fall back
// to a plain generative answer.
type RetrievalResult struct {
	Chunks   []ScoredChunk `json:"chunks"`
	Degraded bool          `json:"degraded"`
}

type SearchFilter struct {
	DocType  DocumentType
	SourceID string
}
