package domain

import "time"

type KnowledgeEventType string

const (
	EventItemActivated   KnowledgeEventType = "item_activated"
	EventItemSuperseded  KnowledgeEventType = "item_superseded"
	EventGoldenPublished KnowledgeEventType = "golden_published"
)

// KnowledgeEvent announces a change to the knowledge state. Consumers use
// it to advance the epoch and drop affected cache entries; delivery is
// at-least-once, handlers must tolerate replays.
type KnowledgeEvent struct {
	Type       KnowledgeEventType `json:"type"`
	ItemID     string             `json:"item_id,omitempty"`
	RelatedID  string             `json:"related_id,omitempty"`
	SourceID   string             `json:"source_id,omitempty"`
	DocType    DocumentType       `json:"doc_type,omitempty"`
	Signature  string             `json:"signature,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// AnswerAffecting reports whether the event can change an already cached
// answer. Rejected or duplicate ingestions never are.
func (e KnowledgeEvent) AnswerAffecting() bool {
	switch e.Type {
	case EventItemActivated, EventItemSuperseded, EventGoldenPublished:
		return true
	default:
		return false
	}
}
