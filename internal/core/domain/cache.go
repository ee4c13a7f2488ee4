package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// CacheParams are the decoding parameters that make two otherwise identical
// queries non-interchangeable. The retrieved document set is deliberately
// not part of the key (membership varies run to run for the same question).
type CacheParams struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type CacheEntry struct {
	Key          string    `json:"key"`
	Query        string    `json:"query"`
	Signature    string    `json:"signature"`
	Embedding    []float32 `json:"-"`
	Payload      string    `json:"payload"`
	Epoch        int64     `json:"epoch"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessAt time.Time `json:"last_access_at"`
	Hits         int64     `json:"hits"`
}

type CachedResult struct {
	Payload  string `json:"payload"`
	Key      string `json:"key"`
	Semantic bool   `json:"semantic"`
}

// CacheKey derives the tier-1 key from the normalized query, the model and
// decoding parameters, and the current knowledge epoch.
func CacheKey(normalizedQuery string, params CacheParams, epoch int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%.4f|%d|%d",
		normalizedQuery, params.Model, params.Temperature, params.MaxTokens, epoch))
	return hex.EncodeToString(sum[:])
}

// QuerySignature is the deterministic signature of a normalized query used
// for exact golden-set matching and targeted cache invalidation.
func QuerySignature(normalizedQuery string) string {
	sum := sha256.Sum256([]byte(normalizedQuery))
	return hex.EncodeToString(sum[:])
}
