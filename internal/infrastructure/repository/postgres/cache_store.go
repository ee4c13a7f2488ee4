package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// CacheStore holds answer-cache entries and the global knowledge epoch.
// A miss is (nil, nil); errors are reserved for real failures.
type CacheStore struct {
	db *sql.DB
}

func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db}
}

func (s *CacheStore) Lookup(ctx context.Context, key string) (*domain.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE query_cache
SET hits = hits + 1, last_access_at = $2
WHERE key = $1
RETURNING key, query, signature, payload, epoch, created_at, last_access_at, hits
`, key, time.Now().UTC())

	entry, err := scanCacheEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	return entry, nil
}

// SearchSimilar finds the closest fresh entry at the current epoch whose
// similarity clears the floor.
func (s *CacheStore) SearchSimilar(ctx context.Context, vector []float32, minSimilarity float64, maxAge time.Duration) (*domain.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT key, query, signature, payload, epoch, created_at, last_access_at, hits
FROM query_cache
WHERE embedding IS NOT NULL
	AND epoch = (SELECT epoch FROM knowledge_epochs WHERE id = 'global')
	AND created_at >= $3
	AND 1 - (embedding <=> $1::vector) >= $2
ORDER BY embedding <=> $1::vector
LIMIT 1
`, vectorLiteral(vector), minSimilarity, time.Now().UTC().Add(-maxAge))

	entry, err := scanCacheEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache similarity search: %w", err)
	}
	return entry, nil
}

func (s *CacheStore) Store(ctx context.Context, entry *domain.CacheEntry) error {
	var embedding any
	if entry.Embedding != nil {
		embedding = vectorLiteral(entry.Embedding)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO query_cache (key, query, signature, embedding, payload, epoch, created_at, last_access_at, hits)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0)
ON CONFLICT (key) DO UPDATE
SET payload = EXCLUDED.payload, embedding = EXCLUDED.embedding,
	epoch = EXCLUDED.epoch, created_at = EXCLUDED.created_at, last_access_at = EXCLUDED.last_access_at
`, entry.Key, entry.Query, entry.Signature, embedding, entry.Payload, entry.Epoch,
		entry.CreatedAt, entry.LastAccessAt)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

func (s *CacheStore) DeleteBelowEpoch(ctx context.Context, epoch int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE epoch < $1`, epoch)
	if err != nil {
		return 0, fmt.Errorf("cache delete below epoch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache delete rows affected: %w", err)
	}
	return n, nil
}

func (s *CacheStore) DeleteBySignature(ctx context.Context, signature string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE signature = $1`, signature); err != nil {
		return fmt.Errorf("cache delete by signature: %w", err)
	}
	return nil
}

func (s *CacheStore) CurrentEpoch(ctx context.Context) (int64, error) {
	var epoch int64
	err := s.db.QueryRowContext(ctx, `SELECT epoch FROM knowledge_epochs WHERE id = 'global'`).Scan(&epoch)
	if err != nil {
		return 0, fmt.Errorf("current epoch: %w", err)
	}
	return epoch, nil
}

func (s *CacheStore) AdvanceEpoch(ctx context.Context) (int64, error) {
	var epoch int64
	err := s.db.QueryRowContext(ctx, `
UPDATE knowledge_epochs SET epoch = epoch + 1 WHERE id = 'global' RETURNING epoch
`).Scan(&epoch)
	if err != nil {
		return 0, fmt.Errorf("advance epoch: %w", err)
	}
	return epoch, nil
}

func scanCacheEntry(row rowScanner) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	err := row.Scan(
		&entry.Key, &entry.Query, &entry.Signature, &entry.Payload, &entry.Epoch,
		&entry.CreatedAt, &entry.LastAccessAt, &entry.Hits,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
