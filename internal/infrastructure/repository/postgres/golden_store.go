package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// GoldenStore persists curated question/answer entries. A signature miss is
// (nil, nil).
type GoldenStore struct {
	db *sql.DB
}

func NewGoldenStore(db *sql.DB) *GoldenStore {
	return &GoldenStore{db: db}
}

const goldenColumns = `
id, question, answer, COALESCE(category, ''), COALESCE(expert_id, ''),
trust, quality, status, signature, citations, created_at, updated_at`

func (s *GoldenStore) FindApprovedBySignature(ctx context.Context, signature string) (*domain.GoldenEntry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT`+goldenColumns+`
FROM golden_entries
WHERE signature = $1 AND status = 'approved'
ORDER BY updated_at DESC
LIMIT 1
`, signature)

	entry, err := scanGoldenEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("golden signature lookup: %w", err)
	}
	return entry, nil
}

func (s *GoldenStore) SearchApprovedSimilar(ctx context.Context, vector []float32, limit int) ([]domain.GoldenEntry, []float64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT`+goldenColumns+`,
	1 - (embedding <=> $1::vector) AS similarity
FROM golden_entries
WHERE status = 'approved' AND embedding IS NOT NULL
ORDER BY embedding <=> $1::vector
LIMIT $2
`, vectorLiteral(vector), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("golden similarity search: %w", err)
	}
	defer rows.Close()

	var entries []domain.GoldenEntry
	var similarities []float64
	for rows.Next() {
		var entry domain.GoldenEntry
		var citationsRaw []byte
		var status string
		var similarity float64
		if err := rows.Scan(
			&entry.ID, &entry.Question, &entry.Answer, &entry.Category, &entry.ExpertID,
			&entry.Trust, &entry.Quality, &status, &entry.Signature, &citationsRaw,
			&entry.CreatedAt, &entry.UpdatedAt, &similarity,
		); err != nil {
			return nil, nil, fmt.Errorf("scan golden entry: %w", err)
		}
		entry.Status = domain.ApprovalStatus(status)
		if len(citationsRaw) > 0 {
			if err := json.Unmarshal(citationsRaw, &entry.Citations); err != nil {
				return nil, nil, fmt.Errorf("unmarshal citations: %w", err)
			}
		}
		entries = append(entries, entry)
		similarities = append(similarities, similarity)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate golden entries: %w", err)
	}
	return entries, similarities, nil
}

func (s *GoldenStore) CreateCandidate(ctx context.Context, entry *domain.GoldenEntry) error {
	citationsJSON, err := json.Marshal(entry.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	var embedding any
	if entry.Embedding != nil {
		embedding = vectorLiteral(entry.Embedding)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO golden_entries (id, question, answer, category, expert_id, trust, quality, status, signature, embedding, citations, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, entry.ID, entry.Question, entry.Answer, entry.Category, entry.ExpertID,
		entry.Trust, entry.Quality, string(entry.Status), entry.Signature, embedding,
		citationsJSON, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert golden entry: %w", err)
	}
	return nil
}

func (s *GoldenStore) Publish(ctx context.Context, id string, embedding []float32) error {
	var vec any
	if embedding != nil {
		vec = vectorLiteral(embedding)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE golden_entries
SET status = $2, embedding = COALESCE($3::vector, embedding), updated_at = $4
WHERE id = $1
`, id, string(domain.ApprovalApproved), vec, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("publish golden entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("publish rows affected: %w", err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrItemNotFound, "publish golden entry", fmt.Errorf("id %s", id))
	}
	return nil
}

func scanGoldenEntry(row rowScanner) (*domain.GoldenEntry, error) {
	var entry domain.GoldenEntry
	var citationsRaw []byte
	var status string
	err := row.Scan(
		&entry.ID, &entry.Question, &entry.Answer, &entry.Category, &entry.ExpertID,
		&entry.Trust, &entry.Quality, &status, &entry.Signature, &citationsRaw,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.Status = domain.ApprovalStatus(status)
	if len(citationsRaw) > 0 {
		if err := json.Unmarshal(citationsRaw, &entry.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
	}
	return &entry, nil
}
