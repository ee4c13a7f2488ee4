package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

const sampleText = "Circolare n. 9/E del 15 marzo 2024\n" +
	"L'Agenzia delle Entrate fornisce chiarimenti sul regime forfettario.\n" +
	"Il comma 3 disciplina le modalità di versamento dell'imposta sostitutiva."

type processFixture struct {
	store     *fakeKnowledgeStore
	storage   *fakeStorage
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	bus       *fakeBus
	uc        *ProcessDocumentUseCase
}

func newProcessFixture(t *testing.T, validateErr error) *processFixture {
	t.Helper()
	f := &processFixture{
		store:     newFakeKnowledgeStore(),
		storage:   newFakeStorage(),
		extractor: &fakeExtractor{text: sampleText, confidence: 0.9},
		embedder:  &fakeEmbedder{},
		bus:       &fakeBus{},
	}
	f.storage.files["raw/doc.html"] = []byte("<html>raw</html>")
	f.store.items["item-1"] = &domain.KnowledgeItem{
		ID:          "item-1",
		Locator:     "https://example.it/circolare-9e",
		SourceID:    "agenzia_entrate",
		StoragePath: "raw/doc.html",
		ContentType: "text/html",
		Status:      domain.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	f.uc = NewProcessDocumentUseCase(
		f.store, f.storage, f.extractor,
		passthroughNormalizer{}, acceptAllValidator{err: validateErr},
		noopReferences{}, sentenceChunker{},
		f.embedder, f.bus, discardLogger(), 0,
	)
	return f
}

func TestProcessByIDAcceptsDocument(t *testing.T) {
	f := newProcessFixture(t, nil)

	result, err := f.uc.ProcessByID(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.IngestAccepted {
		t.Fatalf("status = %s", result.Status)
	}
	if result.ChunkCount != 3 {
		t.Fatalf("chunk count = %d", result.ChunkCount)
	}

	if f.store.committedItem == nil {
		t.Fatalf("nothing committed")
	}
	item := f.store.committedItem
	if item.Fingerprint == "" {
		t.Fatalf("fingerprint not set")
	}
	if item.Title != "Circolare n. 9/E del 15 marzo 2024" {
		t.Fatalf("title = %q", item.Title)
	}
	if item.DocType != domain.TypeCircular {
		t.Fatalf("doc type = %s", item.DocType)
	}
	if item.PublishedAt == nil || item.PublishedAt.Month() != time.March {
		t.Fatalf("published at = %v", item.PublishedAt)
	}
	if item.Embedding == nil {
		t.Fatalf("document embedding not set")
	}
	for i, c := range f.store.committed {
		if c.ID == "" || c.ItemID != "item-1" || c.Position != i {
			t.Fatalf("chunk %d malformed: %+v", i, c)
		}
		if c.Embedding == nil {
			t.Fatalf("chunk %d has no embedding", i)
		}
	}

	if len(f.bus.events) != 1 || f.bus.events[0].Type != domain.EventItemActivated {
		t.Fatalf("events = %+v", f.bus.events)
	}
}

func TestProcessByIDRejectsInvalidContent(t *testing.T) {
	rejection := domain.WrapError(domain.ErrRejected, "validate", errors.New("boilerplate"))
	f := newProcessFixture(t, rejection)

	result, err := f.uc.ProcessByID(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.IngestRejected {
		t.Fatalf("status = %s", result.Status)
	}
	if _, ok := f.store.rejected["item-1"]; !ok {
		t.Fatalf("item not marked rejected")
	}
	if f.store.committedItem != nil {
		t.Fatalf("rejected item was committed")
	}
	if len(f.bus.events) != 0 {
		t.Fatalf("rejection emitted events: %+v", f.bus.events)
	}
}

func TestProcessByIDToleratesEmbeddingFailure(t *testing.T) {
	f := newProcessFixture(t, nil)
	f.embedder.batchErr = errors.New("ollama down")

	result, err := f.uc.ProcessByID(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.IngestAccepted {
		t.Fatalf("status = %s", result.Status)
	}
	if f.store.committedItem.Embedding != nil {
		t.Fatalf("embedding set despite failure")
	}
	for i, c := range f.store.committed {
		if c.Embedding != nil {
			t.Fatalf("chunk %d embedded despite failure", i)
		}
	}
}

func TestProcessByIDTruncatesDocEmbedOnRuneBoundary(t *testing.T) {
	f := newProcessFixture(t, nil)
	f.extractor.text = strings.Repeat("à", 40)
	// 7 bytes lands in the middle of a 2-byte rune
	f.uc = NewProcessDocumentUseCase(
		f.store, f.storage, f.extractor,
		passthroughNormalizer{}, acceptAllValidator{},
		noopReferences{}, sentenceChunker{},
		f.embedder, f.bus, discardLogger(), 7,
	)

	if _, err := f.uc.ProcessByID(context.Background(), "item-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.embedder.batchTexts) == 0 {
		t.Fatalf("embedder never called")
	}
	prefix := f.embedder.batchTexts[0]
	if !utf8.ValidString(prefix) {
		t.Fatalf("document prefix is not valid utf-8: %q", prefix)
	}
	if prefix != strings.Repeat("à", 3) {
		t.Fatalf("prefix = %q", prefix)
	}
}

func TestProcessByIDDuplicateSkipsEventAndChunkCount(t *testing.T) {
	f := newProcessFixture(t, nil)
	f.store.commitOutcome = domain.CommitOutcome{Status: domain.IngestDuplicate}

	result, err := f.uc.ProcessByID(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.IngestDuplicate {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Reason == "" {
		t.Fatalf("duplicate without reason")
	}
	if result.ChunkCount != 0 {
		t.Fatalf("duplicate reports chunk count %d", result.ChunkCount)
	}
	if len(f.bus.events) != 0 {
		t.Fatalf("duplicate emitted events: %+v", f.bus.events)
	}
}

func TestProcessByIDSupersededCarriesRelatedID(t *testing.T) {
	f := newProcessFixture(t, nil)
	f.store.commitOutcome = domain.CommitOutcome{
		Status:       domain.IngestSuperseded,
		SupersededID: "old-item",
	}

	result, err := f.uc.ProcessByID(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.IngestSuperseded {
		t.Fatalf("status = %s", result.Status)
	}
	if len(f.bus.events) != 1 {
		t.Fatalf("events = %+v", f.bus.events)
	}
	event := f.bus.events[0]
	if event.Type != domain.EventItemSuperseded || event.RelatedID != "old-item" {
		t.Fatalf("event = %+v", event)
	}
}

func TestProcessByIDReturnsTemporaryStorageErrors(t *testing.T) {
	f := newProcessFixture(t, nil)
	f.storage.openErr = errors.New("nfs flapping")

	_, err := f.uc.ProcessByID(context.Background(), "item-1")
	if err == nil {
		t.Fatalf("expected error for redelivery")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if _, ok := f.store.rejected["item-1"]; ok {
		t.Fatalf("temporary failure marked item rejected")
	}
}

func TestProcessByIDRejectsEmptyExtraction(t *testing.T) {
	f := newProcessFixture(t, nil)
	f.extractor.text = "   "

	result, err := f.uc.ProcessByID(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.IngestRejected {
		t.Fatalf("status = %s", result.Status)
	}
	if reason := f.store.rejected["item-1"]; !strings.Contains(reason, "extraction") {
		t.Fatalf("reason = %q", reason)
	}
}

func TestClassifyDocType(t *testing.T) {
	cases := []struct {
		name     string
		sourceID string
		refs     domain.ReferenceMap
		text     string
		want     domain.DocumentType
	}{
		{"gazzetta wins", "gazzetta_ufficiale", nil, "qualunque testo", domain.TypeStatute},
		{"circolare wording", "agenzia_entrate", nil, "Circolare n. 9/E", domain.TypeCircular},
		{"risoluzione wording", "agenzia_entrate", nil, "Risoluzione in merito", domain.TypeRuling},
		{"guida wording", "agenzia_entrate", nil, "Guida pratica alle detrazioni", domain.TypeGuide},
		{"statute refs", "altro", domain.ReferenceMap{"legge": {"190/2014"}}, "testo neutro", domain.TypeStatute},
		{"nothing", "altro", nil, "testo neutro", domain.TypeUnknown},
	}
	for _, tc := range cases {
		if got := classifyDocType(tc.sourceID, tc.refs, tc.text); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestDetectPublishedAt(t *testing.T) {
	got := detectPublishedAt("Roma, 12 aprile 2023. Oggetto: chiarimenti.")
	if got == nil {
		t.Fatalf("no date detected")
	}
	want := time.Date(2023, time.April, 12, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if detectPublishedAt("nessuna data per esteso qui 12/04/2023") != nil {
		t.Fatalf("numeric date wrongly accepted")
	}
}
