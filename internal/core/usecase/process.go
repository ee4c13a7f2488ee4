package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
	"github.com/mickgian/pratikoai-kb/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	store      ports.KnowledgeStore
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	normalizer ports.TextNormalizer
	validator  ports.ContentValidator
	references ports.ReferenceParser
	chunker    ports.ChunkSplitter
	embedder   ports.EmbeddingProvider
	bus        ports.EventBus
	logger     *slog.Logger

	docEmbedMaxChars int
}

func NewProcessDocumentUseCase(
	store ports.KnowledgeStore,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	normalizer ports.TextNormalizer,
	validator ports.ContentValidator,
	references ports.ReferenceParser,
	chunker ports.ChunkSplitter,
	embedder ports.EmbeddingProvider,
	bus ports.EventBus,
	logger *slog.Logger,
	docEmbedMaxChars int,
) *ProcessDocumentUseCase {
	if docEmbedMaxChars <= 0 {
		docEmbedMaxChars = 8000
	}
	return &ProcessDocumentUseCase{
		store:            store,
		storage:          storage,
		extractor:        extractor,
		normalizer:       normalizer,
		validator:        validator,
		references:       references,
		chunker:          chunker,
		embedder:         embedder,
		bus:              bus,
		logger:           logger,
		docEmbedMaxChars: docEmbedMaxChars,
	}
}

// ProcessByID runs the offline pipeline for one submitted item: extract,
// normalize, validate, enrich, chunk, embed, commit. Rejections are final
// and recorded on the item; temporary failures return an error so the
// message can be redelivered.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, itemID string) (*domain.IngestResult, error) {
	item, err := uc.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("fetch item by id: %w", err)
	}

	text, err := uc.extractText(ctx, item)
	if err != nil {
		if domain.IsKind(err, domain.ErrTemporary) {
			return nil, err
		}
		return uc.reject(ctx, item.ID, fmt.Sprintf("extraction failed: %v", err))
	}

	text = uc.normalizer.Normalize(text)

	if err := uc.validator.Validate(text); err != nil {
		if !domain.IsKind(err, domain.ErrRejected) {
			return nil, fmt.Errorf("validate content: %w", err)
		}
		return uc.reject(ctx, item.ID, err.Error())
	}

	refs, spans := uc.references.Extract(text)

	item.Text = text
	item.Title = deriveTitle(text)
	item.References = refs
	item.DocType = classifyDocType(item.SourceID, refs, text)
	item.PublishedAt = detectPublishedAt(text)
	item.Fingerprint = domain.Fingerprint(text)

	chunks := uc.buildChunks(item, spans)
	if len(chunks) == 0 {
		return uc.reject(ctx, item.ID, "chunking produced zero usable chunks")
	}

	uc.embed(ctx, item, chunks)

	outcome, err := uc.store.CommitItem(ctx, item, chunks)
	if err != nil {
		return nil, fmt.Errorf("commit item: %w", err)
	}

	uc.publishOutcome(ctx, item, outcome)

	result := &domain.IngestResult{Status: outcome.Status, ItemID: item.ID}
	switch outcome.Status {
	case domain.IngestDuplicate:
		result.Reason = "already in corpus"
	default:
		result.ChunkCount = len(chunks)
	}
	return result, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, item *domain.KnowledgeItem) (string, error) {
	reader, err := uc.storage.Open(ctx, item.StoragePath)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "open stored document", err)
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "read stored document", err)
	}

	raw := domain.RawDocument{
		Locator:     item.Locator,
		ContentType: item.ContentType,
		Body:        body,
		SourceID:    item.SourceID,
		Summary:     item.Summary,
	}
	text, confidence, err := uc.extractor.Extract(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrExtraction, "extract text", errors.New("empty extracted text"))
	}
	if uc.logger != nil && confidence < 0.5 {
		uc.logger.Warn("low extraction confidence",
			"item_id", item.ID, "confidence", confidence)
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) buildChunks(item *domain.KnowledgeItem, spans []domain.ReferenceSpan) []domain.KnowledgeChunk {
	pieces := uc.chunker.Split(item.Text)
	out := make([]domain.KnowledgeChunk, 0, len(pieces))
	for i, piece := range pieces {
		out = append(out, domain.KnowledgeChunk{
			ID:            uuid.NewString(),
			ItemID:        item.ID,
			Position:      i,
			Text:          piece.Text,
			Heading:       piece.Heading,
			TokenEstimate: piece.Tokens,
			Quality:       piece.Quality,
			References:    domain.ReferencesInRange(spans, piece.Start, piece.End),
		})
	}
	return out
}

// embed fills in document and chunk vectors, tolerating failure: a chunk
// without a vector stays reachable through lexical search.
func (uc *ProcessDocumentUseCase) embed(ctx context.Context, item *domain.KnowledgeItem, chunks []domain.KnowledgeChunk) {
	texts := make([]string, 0, len(chunks)+1)
	prefix := item.Text
	if len(prefix) > uc.docEmbedMaxChars {
		// back off to a rune boundary so the prefix stays valid UTF-8
		cut := uc.docEmbedMaxChars
		for cut > 0 && !utf8.RuneStart(prefix[cut]) {
			cut--
		}
		prefix = prefix[:cut]
	}
	texts = append(texts, prefix)
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		if uc.logger != nil {
			uc.logger.Warn("embedding unavailable, indexing lexically only",
				"item_id", item.ID, "error", err)
		}
		return
	}

	item.Embedding = vectors[0]
	missing := 0
	for i := range chunks {
		chunks[i].Embedding = vectors[i+1]
		if vectors[i+1] == nil {
			missing++
		}
	}
	if missing > 0 && uc.logger != nil {
		uc.logger.Warn("partial chunk embeddings",
			"item_id", item.ID, "missing", missing, "total", len(chunks))
	}
}

func (uc *ProcessDocumentUseCase) publishOutcome(ctx context.Context, item *domain.KnowledgeItem, outcome domain.CommitOutcome) {
	var event domain.KnowledgeEvent
	switch outcome.Status {
	case domain.IngestAccepted:
		event = domain.KnowledgeEvent{
			Type:       domain.EventItemActivated,
			ItemID:     item.ID,
			SourceID:   item.SourceID,
			DocType:    item.DocType,
			OccurredAt: time.Now().UTC(),
		}
	case domain.IngestSuperseded:
		event = domain.KnowledgeEvent{
			Type:       domain.EventItemSuperseded,
			ItemID:     item.ID,
			RelatedID:  outcome.SupersededID,
			SourceID:   item.SourceID,
			DocType:    item.DocType,
			OccurredAt: time.Now().UTC(),
		}
	default:
		return
	}
	if err := uc.bus.PublishKnowledgeEvent(ctx, event); err != nil && uc.logger != nil {
		uc.logger.Warn("publish knowledge event failed",
			"item_id", item.ID, "event", string(event.Type), "error", err)
	}
}

func (uc *ProcessDocumentUseCase) reject(ctx context.Context, itemID, reason string) (*domain.IngestResult, error) {
	if err := uc.store.MarkRejected(ctx, itemID, reason); err != nil {
		return nil, fmt.Errorf("mark rejected: %w", err)
	}
	return &domain.IngestResult{
		Status: domain.IngestRejected,
		ItemID: itemID,
		Reason: reason,
	}, nil
}

func deriveTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > 200 {
			line = strings.TrimSpace(string(runes[:200]))
		}
		return line
	}
	return ""
}

// classifyDocType is a citation-and-wording heuristic; sources with a fixed
// publication type win over textual hints.
func classifyDocType(sourceID string, refs domain.ReferenceMap, text string) domain.DocumentType {
	if sourceID == "gazzetta_ufficiale" {
		return domain.TypeStatute
	}

	head := strings.ToLower(text)
	if len(head) > 600 {
		head = head[:600]
	}
	switch {
	case strings.Contains(head, "circolare"):
		return domain.TypeCircular
	case strings.Contains(head, "risoluzione"), strings.Contains(head, "interpello"),
		strings.Contains(head, "provvedimento"):
		return domain.TypeRuling
	case strings.Contains(head, "guida"), strings.Contains(head, "faq"),
		strings.Contains(head, "vademecum"):
		return domain.TypeGuide
	}

	if len(refs["decreto_legislativo"]) > 0 || len(refs["decreto_legge"]) > 0 ||
		len(refs["legge"]) > 0 || len(refs["dpr"]) > 0 {
		if len(refs["circolare"]) > 0 {
			return domain.TypeCircular
		}
		return domain.TypeStatute
	}
	if len(refs["circolare"]) > 0 || len(refs["risoluzione"]) > 0 {
		return domain.TypeCircular
	}
	return domain.TypeUnknown
}

var publishedAtRe = regexp.MustCompile(
	`(?i)\b(\d{1,2})[°]?\s+(gennaio|febbraio|marzo|aprile|maggio|giugno|luglio|agosto|settembre|ottobre|novembre|dicembre)\s+(\d{4})\b`)

var monthIndex = map[string]time.Month{
	"gennaio": time.January, "febbraio": time.February, "marzo": time.March,
	"aprile": time.April, "maggio": time.May, "giugno": time.June,
	"luglio": time.July, "agosto": time.August, "settembre": time.September,
	"ottobre": time.October, "novembre": time.November, "dicembre": time.December,
}

// detectPublishedAt takes the first full Italian date in the document head,
// where acts and circulars state their own date.
func detectPublishedAt(text string) *time.Time {
	head := text
	if len(head) > 2000 {
		head = head[:2000]
	}
	m := publishedAtRe.FindStringSubmatch(head)
	if m == nil {
		return nil
	}
	day, err := strconv.Atoi(m[1])
	if err != nil || day < 1 || day > 31 {
		return nil
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return nil
	}
	t := time.Date(year, monthIndex[strings.ToLower(m[2])], day, 0, 0, 0, 0, time.UTC)
	return &t
}
