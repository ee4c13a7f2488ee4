package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

func newGoldenStoreWithMock(t *testing.T) (*GoldenStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &GoldenStore{db: db}, mock, func() { _ = db.Close() }
}

var goldenTestColumns = []string{
	"id", "question", "answer", "category", "expert_id", "trust", "quality",
	"status", "signature", "citations", "created_at", "updated_at",
}

func TestGoldenSignatureMissIsNilNil(t *testing.T) {
	store, mock, done := newGoldenStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT").
		WithArgs("sig-absent").
		WillReturnError(sql.ErrNoRows)

	entry, err := store.FindApprovedBySignature(context.Background(), "sig-absent")
	if err != nil {
		t.Fatalf("miss returned error: %v", err)
	}
	if entry != nil {
		t.Fatalf("miss returned entry: %+v", entry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGoldenSignatureHitDecodesCitations(t *testing.T) {
	store, mock, done := newGoldenStoreWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT").
		WithArgs("sig-1").
		WillReturnRows(sqlmock.NewRows(goldenTestColumns).AddRow(
			"g1", "domanda?", "risposta", "fiscale", "exp-1", 0.9, 0.8,
			"approved", "sig-1", []byte(`["circolare 9/E"]`), now, now,
		))

	entry, err := store.FindApprovedBySignature(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != domain.ApprovalApproved {
		t.Fatalf("status = %s", entry.Status)
	}
	if len(entry.Citations) != 1 || entry.Citations[0] != "circolare 9/E" {
		t.Fatalf("citations = %v", entry.Citations)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGoldenSearchApprovedSimilarPairsSimilarities(t *testing.T) {
	store, mock, done := newGoldenStoreWithMock(t)
	defer done()

	now := time.Now().UTC()
	columns := append(append([]string{}, goldenTestColumns...), "similarity")
	mock.ExpectQuery("SELECT").
		WithArgs(vectorLiteral([]float32{0.1}), 5).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("g1", "d1?", "r1", "", "", 0.9, 0.9, "approved", "s1", []byte(`[]`), now, now, 0.97).
			AddRow("g2", "d2?", "r2", "", "", 0.8, 0.8, "approved", "s2", []byte(`[]`), now, now, 0.91))

	entries, similarities, err := store.SearchApprovedSimilar(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 || len(similarities) != 2 {
		t.Fatalf("got %d entries, %d similarities", len(entries), len(similarities))
	}
	if entries[0].ID != "g1" || similarities[0] != 0.97 {
		t.Fatalf("first = %+v / %v", entries[0], similarities[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGoldenPublishReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	store, mock, done := newGoldenStoreWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE golden_entries").
		WithArgs("missing", string(domain.ApprovalApproved), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Publish(context.Background(), "missing", []float32{0.1})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGoldenPublishWithoutEmbeddingKeepsExisting(t *testing.T) {
	store, mock, done := newGoldenStoreWithMock(t)
	defer done()

	// nil embedding binds NULL so COALESCE keeps the stored vector
	mock.ExpectExec("UPDATE golden_entries").
		WithArgs("g1", string(domain.ApprovalApproved), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Publish(context.Background(), "g1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGoldenCreateCandidate(t *testing.T) {
	store, mock, done := newGoldenStoreWithMock(t)
	defer done()

	now := time.Now().UTC()
	entry := &domain.GoldenEntry{
		ID:        "g1",
		Question:  "domanda?",
		Answer:    "risposta",
		Trust:     0.9,
		Quality:   0.8,
		Status:    domain.ApprovalPending,
		Signature: "sig-1",
		Citations: []string{"art. 12"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO golden_entries").
		WithArgs("g1", "domanda?", "risposta", "", "", 0.9, 0.8,
			string(domain.ApprovalPending), "sig-1", nil, []byte(`["art. 12"]`), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.CreateCandidate(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
