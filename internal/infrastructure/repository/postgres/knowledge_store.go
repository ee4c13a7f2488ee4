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

// KnowledgeStore persists items and chunks in a single Postgres database.
// Chunks carry both a generated Italian tsvector and an optional pgvector
// embedding, so one store serves lexical and vector retrieval.
type KnowledgeStore struct {
	db *sql.DB
}

func NewKnowledgeStore(db *sql.DB) *KnowledgeStore {
	return &KnowledgeStore{db: db}
}

func (s *KnowledgeStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge_items (
	id TEXT PRIMARY KEY,
	locator TEXT NOT NULL,
	source_id TEXT NOT NULL,
	title TEXT,
	body TEXT,
	content_type TEXT,
	storage_path TEXT,
	doc_type TEXT NOT NULL DEFAULT 'unknown',
	legal_refs JSONB NOT NULL DEFAULT '{}'::jsonb,
	fingerprint TEXT,
	subject_key TEXT,
	embedding vector(768),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	reject_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_items_locator_active
	ON knowledge_items(locator) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_items_fingerprint ON knowledge_items(fingerprint) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_items_subject_key ON knowledge_items(subject_key) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_items_status ON knowledge_items(status);

CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES knowledge_items(id) ON DELETE CASCADE,
	position INT NOT NULL,
	body TEXT NOT NULL,
	heading TEXT,
	legal_refs JSONB NOT NULL DEFAULT '{}'::jsonb,
	token_estimate INT NOT NULL DEFAULT 0,
	quality DOUBLE PRECISION NOT NULL DEFAULT 0,
	embedding vector(768),
	tsv tsvector GENERATED ALWAYS AS (to_tsvector('italian', body)) STORED
);

CREATE INDEX IF NOT EXISTS idx_chunks_item ON knowledge_chunks(item_id);
CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON knowledge_chunks USING GIN(tsv);

CREATE TABLE IF NOT EXISTS query_cache (
	key TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	signature TEXT NOT NULL,
	embedding vector(768),
	payload TEXT NOT NULL,
	epoch BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	last_access_at TIMESTAMPTZ NOT NULL,
	hits BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cache_signature ON query_cache(signature);
CREATE INDEX IF NOT EXISTS idx_cache_epoch ON query_cache(epoch);

CREATE TABLE IF NOT EXISTS golden_entries (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	category TEXT,
	expert_id TEXT,
	trust DOUBLE PRECISION NOT NULL DEFAULT 0,
	quality DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	signature TEXT NOT NULL,
	embedding vector(768),
	citations JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_golden_signature ON golden_entries(signature) WHERE status = 'approved';

CREATE TABLE IF NOT EXISTS knowledge_epochs (
	id TEXT PRIMARY KEY,
	epoch BIGINT NOT NULL
);

INSERT INTO knowledge_epochs (id, epoch) VALUES ('global', 1) ON CONFLICT (id) DO NOTHING;
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *KnowledgeStore) CreateSubmission(ctx context.Context, item *domain.KnowledgeItem) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO knowledge_items (
	id, locator, source_id, content_type, storage_path, doc_type, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		item.ID, item.Locator, item.SourceID, item.ContentType, item.StoragePath,
		string(domain.TypeUnknown), string(domain.StatusPending), item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *KnowledgeStore) GetItem(ctx context.Context, id string) (*domain.KnowledgeItem, error) {
	return scanItem(s.db.QueryRowContext(ctx, `
SELECT id, locator, source_id, title, body, content_type, storage_path, doc_type,
	legal_refs, fingerprint, published_at, status, reject_reason, created_at, updated_at
FROM knowledge_items
WHERE id = $1
`, id), id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner, id string) (*domain.KnowledgeItem, error) {
	var item domain.KnowledgeItem
	var title, body, contentType, storagePath, fingerprint, rejectReason sql.NullString
	var docType, status string
	var refsRaw []byte
	var publishedAt sql.NullTime

	err := row.Scan(
		&item.ID, &item.Locator, &item.SourceID, &title, &body, &contentType, &storagePath,
		&docType, &refsRaw, &fingerprint, &publishedAt, &status, &rejectReason,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrItemNotFound, "get item", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}

	item.Title = title.String
	item.Text = body.String
	item.ContentType = contentType.String
	item.StoragePath = storagePath.String
	item.Fingerprint = fingerprint.String
	item.RejectReason = rejectReason.String
	item.DocType = domain.DocumentType(docType)
	item.Status = domain.ItemStatus(status)
	if publishedAt.Valid {
		t := publishedAt.Time
		item.PublishedAt = &t
	}
	if len(refsRaw) > 0 {
		if err := json.Unmarshal(refsRaw, &item.References); err != nil {
			return nil, fmt.Errorf("unmarshal legal refs: %w", err)
		}
	}
	return &item, nil
}

func (s *KnowledgeStore) MarkRejected(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE knowledge_items
SET status = $2, reject_reason = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.StatusRejected), reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark rejected: %w", err)
	}
	return nil
}

// CommitItem resolves a fully processed item against the active corpus and
// activates it, inside one transaction under a per-locator advisory lock.
// Resolution order: same locator (identical or near-identical content is a
// duplicate, real change supersedes), same fingerprint elsewhere (duplicate),
// same subject key elsewhere (supersedes).
func (s *KnowledgeStore) CommitItem(ctx context.Context, item *domain.KnowledgeItem, chunks []domain.KnowledgeChunk) (domain.CommitOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CommitOutcome{}, fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKeyFor(item.Locator)); err != nil {
		return domain.CommitOutcome{}, fmt.Errorf("acquire locator lock: %w", err)
	}

	subjectKey := domain.SubjectKey(item.Title, item.References, item.DocType)

	outcome, err := s.resolveAgainstActive(ctx, tx, item, subjectKey)
	if err != nil {
		return domain.CommitOutcome{}, err
	}

	if outcome.Status == domain.IngestDuplicate {
		reason := "duplicate"
		if outcome.SupersededID != "" {
			reason = "duplicate of " + outcome.SupersededID
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE knowledge_items SET status = $2, reject_reason = $3, updated_at = $4 WHERE id = $1
`, item.ID, string(domain.StatusRejected), reason, time.Now().UTC()); err != nil {
			return domain.CommitOutcome{}, fmt.Errorf("record duplicate: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return domain.CommitOutcome{}, fmt.Errorf("commit tx: %w", err)
		}
		return domain.CommitOutcome{Status: domain.IngestDuplicate, SupersededID: ""}, nil
	}

	if outcome.Status == domain.IngestSuperseded {
		if _, err := tx.ExecContext(ctx, `
UPDATE knowledge_items SET status = $2, updated_at = $3 WHERE id = $1
`, outcome.SupersededID, string(domain.StatusSuperseded), time.Now().UTC()); err != nil {
			return domain.CommitOutcome{}, fmt.Errorf("supersede item: %w", err)
		}
	}

	if err := s.activate(ctx, tx, item, subjectKey, chunks); err != nil {
		return domain.CommitOutcome{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.CommitOutcome{}, fmt.Errorf("commit tx: %w", err)
	}
	return outcome, nil
}

// resolveAgainstActive decides the commit outcome without writing anything.
func (s *KnowledgeStore) resolveAgainstActive(ctx context.Context, tx *sql.Tx, item *domain.KnowledgeItem, subjectKey string) (domain.CommitOutcome, error) {
	var existingID, existingFingerprint string
	var existingBody sql.NullString
	err := tx.QueryRowContext(ctx, `
SELECT id, fingerprint, body FROM knowledge_items
WHERE locator = $1 AND status = 'active' AND id <> $2
`, item.Locator, item.ID).Scan(&existingID, &existingFingerprint, &existingBody)
	switch {
	case err == nil:
		if existingFingerprint == item.Fingerprint {
			return domain.CommitOutcome{Status: domain.IngestDuplicate, SupersededID: existingID}, nil
		}
		if domain.NearIdenticalText(existingBody.String, item.Text) {
			return domain.CommitOutcome{Status: domain.IngestDuplicate, SupersededID: existingID}, nil
		}
		return domain.CommitOutcome{Status: domain.IngestSuperseded, SupersededID: existingID}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.CommitOutcome{}, fmt.Errorf("lookup active locator: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
SELECT id FROM knowledge_items
WHERE fingerprint = $1 AND status = 'active' AND id <> $2
LIMIT 1
`, item.Fingerprint, item.ID).Scan(&existingID)
	switch {
	case err == nil:
		return domain.CommitOutcome{Status: domain.IngestDuplicate, SupersededID: existingID}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.CommitOutcome{}, fmt.Errorf("lookup fingerprint: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
SELECT id FROM knowledge_items
WHERE subject_key = $1 AND status = 'active' AND id <> $2
ORDER BY COALESCE(published_at, created_at) DESC
LIMIT 1
`, subjectKey, item.ID).Scan(&existingID)
	switch {
	case err == nil:
		return domain.CommitOutcome{Status: domain.IngestSuperseded, SupersededID: existingID}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.CommitOutcome{}, fmt.Errorf("lookup subject key: %w", err)
	}

	return domain.CommitOutcome{Status: domain.IngestAccepted}, nil
}

func (s *KnowledgeStore) activate(ctx context.Context, tx *sql.Tx, item *domain.KnowledgeItem, subjectKey string, chunks []domain.KnowledgeChunk) error {
	refsJSON, err := json.Marshal(item.References)
	if err != nil {
		return fmt.Errorf("marshal legal refs: %w", err)
	}

	var publishedAt any
	if item.PublishedAt != nil {
		publishedAt = *item.PublishedAt
	}
	var embedding any
	if item.Embedding != nil {
		embedding = vectorLiteral(item.Embedding)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE knowledge_items
SET title = $2, body = $3, doc_type = $4, legal_refs = $5, fingerprint = $6,
	subject_key = $7, published_at = $8, embedding = $9, status = $10, updated_at = $11
WHERE id = $1
`, item.ID, item.Title, item.Text, string(item.DocType), refsJSON, item.Fingerprint,
		subjectKey, publishedAt, embedding, string(domain.StatusActive), time.Now().UTC()); err != nil {
		return fmt.Errorf("activate item: %w", err)
	}

	for _, chunk := range chunks {
		chunkRefs, err := json.Marshal(chunk.References)
		if err != nil {
			return fmt.Errorf("marshal chunk refs: %w", err)
		}
		var chunkEmbedding any
		if chunk.Embedding != nil {
			chunkEmbedding = vectorLiteral(chunk.Embedding)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO knowledge_chunks (id, item_id, position, body, heading, legal_refs, token_estimate, quality, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, chunk.ID, chunk.ItemID, chunk.Position, chunk.Text, chunk.Heading, chunkRefs,
			chunk.TokenEstimate, chunk.Quality, chunkEmbedding); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}
