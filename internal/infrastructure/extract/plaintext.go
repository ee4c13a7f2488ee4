package extract

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// PlainTextStrategy accepts UTF-8 text bodies as-is.
type PlainTextStrategy struct{}

func NewPlainTextStrategy() *PlainTextStrategy {
	return &PlainTextStrategy{}
}

func (s *PlainTextStrategy) Extract(_ context.Context, raw domain.RawDocument) (string, float64, error) {
	if !utf8.Valid(raw.Body) {
		return "", 0, domain.WrapError(domain.ErrExtraction, "extract plaintext",
			errors.New("body is not valid utf-8"))
	}
	text := strings.TrimSpace(string(raw.Body))
	if text == "" {
		return "", 0, domain.WrapError(domain.ErrExtraction, "extract plaintext",
			errors.New("empty body"))
	}
	return text, 1.0, nil
}
