package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
	"github.com/mickgian/pratikoai-kb/internal/core/ports"
)

type IngestDocumentUseCase struct {
	store   ports.KnowledgeStore
	storage ports.ObjectStorage
	bus     ports.EventBus
}

func NewIngestDocumentUseCase(
	store ports.KnowledgeStore,
	storage ports.ObjectStorage,
	bus ports.EventBus,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		store:   store,
		storage: storage,
		bus:     bus,
	}
}

// Submit records a raw document and enqueues it for processing. The raw
// bytes go to object storage untouched; every later stage re-reads them
// from there.
func (uc *IngestDocumentUseCase) Submit(ctx context.Context, raw domain.RawDocument) (*domain.KnowledgeItem, error) {
	if strings.TrimSpace(raw.Locator) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit document", errors.New("empty locator"))
	}
	if len(raw.Body) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit document", errors.New("empty body"))
	}
	if raw.SourceID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit document", errors.New("empty source id"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, storageBasename(raw.Locator))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(raw.Body)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	item := &domain.KnowledgeItem{
		ID:          id,
		Locator:     raw.Locator,
		SourceID:    raw.SourceID,
		ContentType: raw.ContentType,
		StoragePath: storageKey,
		Summary:     raw.Summary,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.store.CreateSubmission(ctx, item); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	if err := uc.bus.PublishDocumentSubmitted(ctx, item.ID); err != nil {
		return nil, fmt.Errorf("publish submission event: %w", err)
	}

	return item, nil
}

func (uc *IngestDocumentUseCase) GetByID(ctx context.Context, id string) (*domain.KnowledgeItem, error) {
	item, err := uc.store.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch item by id: %w", err)
	}
	return item, nil
}

func storageBasename(locator string) string {
	base := filepath.Base(strings.TrimRight(strings.ReplaceAll(locator, "\\", "/"), "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	base = strings.Trim(base, "._")
	if base == "" {
		return "document.bin"
	}
	if len(base) > 80 {
		base = base[len(base)-80:]
	}
	return base
}
