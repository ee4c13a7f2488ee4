package domain

import "time"

type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusActive     ItemStatus = "active"
	StatusSuperseded ItemStatus = "superseded"
	StatusRejected   ItemStatus = "rejected"
)

type DocumentType string

const (
	TypeStatute  DocumentType = "statute"
	TypeRuling   DocumentType = "ruling"
	TypeCircular DocumentType = "circular"
	TypeGuide    DocumentType = "guide"
	TypeUnknown  DocumentType = "unknown"
)

// RawDocument is a fetched-but-unprocessed document handed over by a source
// collector. Summary is an optional short-form text (e.g. a feed abstract)
// used only as an extraction fallback.
type RawDocument struct {
	Locator     string    `json:"locator"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	SourceID    string    `json:"source_id"`
	Summary     string    `json:"summary,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// ReferenceMap groups extracted legal citations by kind, e.g.
// {"articolo": ["12"], "decreto_legislativo": ["33/2013"]}.
type ReferenceMap map[string][]string

type KnowledgeItem struct {
	ID           string       `json:"id"`
	Locator      string       `json:"locator"`
	SourceID     string       `json:"source_id"`
	Title        string       `json:"title,omitempty"`
	Text         string       `json:"text,omitempty"`
	Embedding    []float32    `json:"-"`
	PublishedAt  *time.Time   `json:"published_at,omitempty"`
	DocType      DocumentType `json:"doc_type"`
	References   ReferenceMap `json:"references,omitempty"`
	Fingerprint  string       `json:"fingerprint,omitempty"`
	Status       ItemStatus   `json:"status"`
	RejectReason string       `json:"reject_reason,omitempty"`
	StoragePath  string       `json:"-"`
	ContentType  string       `json:"content_type,omitempty"`
	Summary      string       `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// KnowledgeChunk is a retrieval unit owned by exactly one KnowledgeItem.
// Embedding is nil when the embedding call failed; such chunks stay
// reachable through lexical search only.
type KnowledgeChunk struct {
	ID            string       `json:"id"`
	ItemID        string       `json:"item_id"`
	Position      int          `json:"position"`
	Text          string       `json:"text"`
	TokenEstimate int          `json:"token_estimate"`
	Embedding     []float32    `json:"-"`
	Quality       float64      `json:"quality"`
	Heading       string       `json:"heading,omitempty"`
	References    ReferenceMap `json:"references,omitempty"`
}

type IngestStatus string

const (
	IngestAccepted   IngestStatus = "accepted"
	IngestDuplicate  IngestStatus = "duplicate"
	IngestSuperseded IngestStatus = "superseded"
	IngestRejected   IngestStatus = "rejected"
)

type IngestResult struct {
	Status     IngestStatus `json:"status"`
	ItemID     string       `json:"item_id,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	ChunkCount int          `json:"chunk_count,omitempty"`
}

// CommitOutcome reports how the store resolved a processed item against the
// existing corpus under the per-locator lock.
type CommitOutcome struct {
	Status       IngestStatus
	SupersededID string
}
