package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
	"github.com/mickgian/pratikoai-kb/internal/core/ports"
	"github.com/mickgian/pratikoai-kb/internal/infrastructure/textproc"
)

// PDFStrategy extracts text page by page. Pages whose native extraction
// fails the printable/alphabetic gates are sent to OCR; the latency cost is
// paid only on failure, never proactively.
type PDFStrategy struct {
	ocr    ports.OCRProvider
	logger *slog.Logger
}

func NewPDFStrategy(ocr ports.OCRProvider, logger *slog.Logger) *PDFStrategy {
	return &PDFStrategy{ocr: ocr, logger: logger}
}

func (s *PDFStrategy) Extract(ctx context.Context, raw domain.RawDocument) (string, float64, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw.Body), int64(len(raw.Body)))
	if err != nil {
		return "", 0, domain.WrapError(domain.ErrExtraction, "open pdf", err)
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return "", 0, domain.WrapError(domain.ErrExtraction, "open pdf", errors.New("pdf has no pages"))
	}

	var pages []string
	native := 0
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err == nil && textproc.PageLooksExtracted(text) {
			pages = append(pages, strings.TrimSpace(text))
			native++
			continue
		}

		recognized, ocrErr := s.recognize(ctx, raw.Body, pageNum)
		if ocrErr != nil {
			s.logger.Warn("pdf page unreadable",
				"locator", raw.Locator, "page", pageNum, "error", ocrErr)
			continue
		}
		if strings.TrimSpace(recognized) != "" {
			pages = append(pages, strings.TrimSpace(recognized))
		}
	}

	if len(pages) == 0 {
		return "", 0, domain.WrapError(domain.ErrExtraction, "extract pdf",
			fmt.Errorf("no readable text in %d pages", totalPages))
	}

	confidence := float64(native) / float64(totalPages)
	return strings.Join(pages, "\n\n"), confidence, nil
}

func (s *PDFStrategy) recognize(ctx context.Context, body []byte, page int) (string, error) {
	if s.ocr == nil {
		return "", errors.New("ocr provider not configured")
	}
	return s.ocr.RecognizePage(ctx, body, page)
}
