package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// ChunkSearcher runs lexical, vector and authority-first queries over active
// chunks. Chunks of superseded or rejected items never surface.
type ChunkSearcher struct {
	db *sql.DB
	// authoritySources lists source ids from most to least authoritative.
	authoritySources []string
}

func NewChunkSearcher(db *sql.DB, authoritySources []string) *ChunkSearcher {
	return &ChunkSearcher{db: db, authoritySources: authoritySources}
}

const chunkColumns = `
c.id, c.item_id, c.position, c.body, COALESCE(c.heading, ''), c.legal_refs,
i.source_id, i.doc_type`

func (s *ChunkSearcher) SearchLexical(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	sqlQuery := `
SELECT` + chunkColumns + `,
	ts_rank(c.tsv, plainto_tsquery('italian', $1)) AS score
FROM knowledge_chunks c
JOIN knowledge_items i ON i.id = c.item_id AND i.status = 'active'
WHERE c.tsv @@ plainto_tsquery('italian', $1)`
	args := []any{query}
	sqlQuery, args = appendFilter(sqlQuery, args, filter)
	sqlQuery += fmt.Sprintf(`
ORDER BY score DESC
LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return collectChunks(rows)
}

func (s *ChunkSearcher) SearchVector(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	sqlQuery := `
SELECT` + chunkColumns + `,
	1 - (c.embedding <=> $1::vector) AS score
FROM knowledge_chunks c
JOIN knowledge_items i ON i.id = c.item_id AND i.status = 'active'
WHERE c.embedding IS NOT NULL`
	args := []any{vectorLiteral(vector)}
	sqlQuery, args = appendFilter(sqlQuery, args, filter)
	sqlQuery += fmt.Sprintf(`
ORDER BY c.embedding <=> $1::vector
LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return collectChunks(rows)
}

// SearchAuthority is a lexical pass restricted to the configured
// authoritative sources, ranked source-first then relevance.
func (s *ChunkSearcher) SearchAuthority(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error) {
	if len(s.authoritySources) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT`+chunkColumns+`,
	ts_rank(c.tsv, plainto_tsquery('italian', $1)) AS score
FROM knowledge_chunks c
JOIN knowledge_items i ON i.id = c.item_id AND i.status = 'active'
WHERE c.tsv @@ plainto_tsquery('italian', $1)
	AND i.source_id = ANY($2::text[])
ORDER BY array_position($2::text[], i.source_id), score DESC
LIMIT $3
`, query, pqStringArray(s.authoritySources), limit)
	if err != nil {
		return nil, fmt.Errorf("authority search: %w", err)
	}
	return collectChunks(rows)
}

// pqStringArray renders a text[] literal; values are trusted config, not
// user input.
func pqStringArray(values []string) string {
	out := "{"
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out + "}"
}

func appendFilter(query string, args []any, filter domain.SearchFilter) (string, []any) {
	if filter.DocType != "" && filter.DocType != domain.TypeUnknown {
		args = append(args, string(filter.DocType))
		query += fmt.Sprintf(" AND i.doc_type = $%d", len(args))
	}
	if filter.SourceID != "" {
		args = append(args, filter.SourceID)
		query += fmt.Sprintf(" AND i.source_id = $%d", len(args))
	}
	return query, args
}

func collectChunks(rows *sql.Rows) ([]domain.ScoredChunk, error) {
	defer rows.Close()

	var out []domain.ScoredChunk
	for rows.Next() {
		var chunk domain.ScoredChunk
		var refsRaw []byte
		var docType string
		if err := rows.Scan(
			&chunk.ChunkID, &chunk.ItemID, &chunk.Position, &chunk.Text, &chunk.Heading,
			&refsRaw, &chunk.SourceID, &docType, &chunk.Score,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.DocType = domain.DocumentType(docType)
		if len(refsRaw) > 0 {
			if err := json.Unmarshal(refsRaw, &chunk.References); err != nil {
				return nil, fmt.Errorf("unmarshal chunk refs: %w", err)
			}
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
