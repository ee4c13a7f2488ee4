package usecase

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeKnowledgeStore struct {
	items         map[string]*domain.KnowledgeItem
	created       []*domain.KnowledgeItem
	rejected      map[string]string
	commitOutcome domain.CommitOutcome
	commitErr     error
	committedItem *domain.KnowledgeItem
	committed     []domain.KnowledgeChunk
}

func newFakeKnowledgeStore() *fakeKnowledgeStore {
	return &fakeKnowledgeStore{
		items:         make(map[string]*domain.KnowledgeItem),
		rejected:      make(map[string]string),
		commitOutcome: domain.CommitOutcome{Status: domain.IngestAccepted},
	}
}

func (s *fakeKnowledgeStore) CreateSubmission(_ context.Context, item *domain.KnowledgeItem) error {
	s.created = append(s.created, item)
	s.items[item.ID] = item
	return nil
}

func (s *fakeKnowledgeStore) GetItem(_ context.Context, id string) (*domain.KnowledgeItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return item, nil
}

func (s *fakeKnowledgeStore) MarkRejected(_ context.Context, id, reason string) error {
	s.rejected[id] = reason
	return nil
}

func (s *fakeKnowledgeStore) CommitItem(_ context.Context, item *domain.KnowledgeItem, chunks []domain.KnowledgeChunk) (domain.CommitOutcome, error) {
	if s.commitErr != nil {
		return domain.CommitOutcome{}, s.commitErr
	}
	s.committedItem = item
	s.committed = chunks
	return s.commitOutcome, nil
}

type fakeStorage struct {
	files   map[string][]byte
	saveErr error
	openErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte)}
}

func (s *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.files[key] = body
	return nil
}

func (s *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	body, ok := s.files[key]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

type fakeBus struct {
	submitted  []string
	events     []domain.KnowledgeEvent
	publishErr error
	eventErr   error
}

func (b *fakeBus) PublishDocumentSubmitted(_ context.Context, itemID string) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.submitted = append(b.submitted, itemID)
	return nil
}

func (b *fakeBus) SubscribeDocumentSubmitted(context.Context, func(context.Context, string) error) error {
	return nil
}

func (b *fakeBus) PublishKnowledgeEvent(_ context.Context, event domain.KnowledgeEvent) error {
	if b.eventErr != nil {
		return b.eventErr
	}
	b.events = append(b.events, event)
	return nil
}

func (b *fakeBus) SubscribeKnowledgeEvents(context.Context, func(context.Context, domain.KnowledgeEvent) error) error {
	return nil
}

type fakeExtractor struct {
	text       string
	confidence float64
	err        error
}

func (e *fakeExtractor) Extract(context.Context, domain.RawDocument) (string, float64, error) {
	if e.err != nil {
		return "", 0, e.err
	}
	return e.text, e.confidence, nil
}

type fakeEmbedder struct {
	queryVec   []float32
	queryErr   error
	batchErr   error
	nilRows    map[int]bool
	batchSize  int
	batchTexts []string
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	e.batchSize = len(texts)
	e.batchTexts = texts
	out := make([][]float32, len(texts))
	for i := range texts {
		if e.nilRows[i] {
			continue
		}
		out[i] = []float32{float32(i) + 0.5}
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	if e.queryVec != nil {
		return e.queryVec, nil
	}
	return []float32{0.1, 0.2}, nil
}

type fakeSynthesizer struct {
	draft string
	err   error
}

func (s *fakeSynthesizer) Synthesize(context.Context, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.draft == "" {
		return "risposta ipotetica", nil
	}
	return s.draft, nil
}

type fakeSearcher struct {
	lexical      []domain.ScoredChunk
	vector       []domain.ScoredChunk
	authority    []domain.ScoredChunk
	lexicalErr   error
	vectorErr    error
	authorityErr error
}

func (s *fakeSearcher) SearchLexical(context.Context, string, int, domain.SearchFilter) ([]domain.ScoredChunk, error) {
	return s.lexical, s.lexicalErr
}

func (s *fakeSearcher) SearchVector(context.Context, []float32, int, domain.SearchFilter) ([]domain.ScoredChunk, error) {
	return s.vector, s.vectorErr
}

func (s *fakeSearcher) SearchAuthority(context.Context, string, int) ([]domain.ScoredChunk, error) {
	return s.authority, s.authorityErr
}

type fakeCacheStore struct {
	entries      map[string]*domain.CacheEntry
	similar      *domain.CacheEntry
	epoch        int64
	stored       []*domain.CacheEntry
	deletedBelow []int64
	deletedSigs  []string
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{entries: make(map[string]*domain.CacheEntry), epoch: 1}
}

func (c *fakeCacheStore) Lookup(_ context.Context, key string) (*domain.CacheEntry, error) {
	return c.entries[key], nil
}

func (c *fakeCacheStore) SearchSimilar(context.Context, []float32, float64, time.Duration) (*domain.CacheEntry, error) {
	return c.similar, nil
}

func (c *fakeCacheStore) Store(_ context.Context, entry *domain.CacheEntry) error {
	c.stored = append(c.stored, entry)
	c.entries[entry.Key] = entry
	return nil
}

func (c *fakeCacheStore) DeleteBelowEpoch(_ context.Context, epoch int64) (int64, error) {
	c.deletedBelow = append(c.deletedBelow, epoch)
	return 0, nil
}

func (c *fakeCacheStore) DeleteBySignature(_ context.Context, signature string) error {
	c.deletedSigs = append(c.deletedSigs, signature)
	return nil
}

func (c *fakeCacheStore) CurrentEpoch(context.Context) (int64, error) {
	return c.epoch, nil
}

func (c *fakeCacheStore) AdvanceEpoch(context.Context) (int64, error) {
	c.epoch++
	return c.epoch, nil
}

type fakeGoldenStore struct {
	bySignature  map[string]*domain.GoldenEntry
	similar      []domain.GoldenEntry
	similarities []float64
	candidates   []*domain.GoldenEntry
	published    []string
	publishErr   error
}

func newFakeGoldenStore() *fakeGoldenStore {
	return &fakeGoldenStore{bySignature: make(map[string]*domain.GoldenEntry)}
}

func (g *fakeGoldenStore) FindApprovedBySignature(_ context.Context, signature string) (*domain.GoldenEntry, error) {
	return g.bySignature[signature], nil
}

func (g *fakeGoldenStore) SearchApprovedSimilar(context.Context, []float32, int) ([]domain.GoldenEntry, []float64, error) {
	return g.similar, g.similarities, nil
}

func (g *fakeGoldenStore) CreateCandidate(_ context.Context, entry *domain.GoldenEntry) error {
	g.candidates = append(g.candidates, entry)
	return nil
}

func (g *fakeGoldenStore) Publish(_ context.Context, id string, _ []float32) error {
	if g.publishErr != nil {
		return g.publishErr
	}
	g.published = append(g.published, id)
	return nil
}

type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(text string) string { return text }

type acceptAllValidator struct{ err error }

func (v acceptAllValidator) Validate(string) error { return v.err }

type noopReferences struct{}

func (noopReferences) Extract(string) (domain.ReferenceMap, []domain.ReferenceSpan) {
	return nil, nil
}

// sentenceChunker splits on newline, one chunk per non-empty line.
type sentenceChunker struct{}

func (sentenceChunker) Split(text string) []domain.TextChunk {
	var out []domain.TextChunk
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, domain.TextChunk{
				Text:    line,
				Tokens:  len(line) / 4,
				Quality: 1,
				Start:   offset,
				End:     offset + len(line),
			})
		}
		offset += len(line) + 1
	}
	return out
}
