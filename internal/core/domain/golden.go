package domain

import "time"

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// GoldenEntry is a curated question/answer pair. Candidates enter via
// expert feedback and only approved entries are matchable at query time.
type GoldenEntry struct {
	ID        string         `json:"id"`
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Category  string         `json:"category,omitempty"`
	ExpertID  string         `json:"expert_id,omitempty"`
	Trust     float64        `json:"trust"`
	Quality   float64        `json:"quality"`
	Status    ApprovalStatus `json:"status"`
	Signature string         `json:"signature"`
	Embedding []float32      `json:"-"`
	Citations []string       `json:"citations,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// GoldenAnswer is a pre-approved answer served instead of full retrieval.
type GoldenAnswer struct {
	EntryID    string   `json:"entry_id"`
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Category   string   `json:"category,omitempty"`
	Citations  []string `json:"citations,omitempty"`
	Similarity float64  `json:"similarity"`
	Exact      bool     `json:"exact"`
}
