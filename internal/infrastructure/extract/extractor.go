package extract

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// Strategy extracts plain text from one document format. Confidence is in
// [0,1]; a low value signals that a fallback path produced the text.
type Strategy interface {
	Extract(ctx context.Context, raw domain.RawDocument) (string, float64, error)
}

// Router selects an extraction strategy by declared content type, falling
// back to structural sniffing for unknown or ambiguous types.
type Router struct {
	html  Strategy
	pdf   Strategy
	plain Strategy
}

func NewRouter(html, pdf, plain Strategy) *Router {
	return &Router{html: html, pdf: pdf, plain: plain}
}

func (r *Router) Extract(ctx context.Context, raw domain.RawDocument) (string, float64, error) {
	strategy := r.byContentType(raw.ContentType)
	if strategy == nil {
		strategy = r.bySniffing(raw.Body)
	}
	if strategy == nil {
		return "", 0, domain.WrapError(domain.ErrExtraction, "route document",
			errors.New("unrecognized document format"))
	}
	return strategy.Extract(ctx, raw)
}

func (r *Router) byContentType(contentType string) Strategy {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return r.html
	case "application/pdf", "application/x-pdf":
		return r.pdf
	case "text/plain", "text/markdown":
		return r.plain
	default:
		return nil
	}
}

func (r *Router) bySniffing(body []byte) Strategy {
	if bytes.HasPrefix(body, []byte("%PDF-")) {
		return r.pdf
	}
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.Contains(head, []byte("<html")) {
		return r.html
	}
	if utf8.Valid(body) {
		return r.plain
	}
	return nil
}
