package extract

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/net/html"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// HTMLStrategy strips boilerplate from web pages, preferring precision over
// recall. When the stripped body is implausibly small, it falls back to the
// collector-provided summary (tags removed); the summary is normalized
// downstream like any other extraction output.
type HTMLStrategy struct {
	minBodyChars int
}

func NewHTMLStrategy(minBodyChars int) *HTMLStrategy {
	if minBodyChars <= 0 {
		minBodyChars = 500
	}
	return &HTMLStrategy{minBodyChars: minBodyChars}
}

var skipElements = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {},
	"nav": {}, "header": {}, "footer": {}, "aside": {}, "form": {},
	"button": {}, "select": {}, "iframe": {}, "svg": {},
}

var skipClassHints = []string{
	"cookie", "consent", "banner", "breadcrumb", "menu", "navbar",
	"sidebar", "footer", "social", "newsletter", "share",
}

var voidElements = map[string]struct{}{
	"br": {}, "img": {}, "hr": {}, "input": {}, "meta": {}, "link": {},
	"area": {}, "base": {}, "col": {}, "embed": {}, "source": {},
	"track": {}, "wbr": {},
}

var blockElements = map[string]struct{}{
	"p": {}, "div": {}, "li": {}, "td": {}, "th": {}, "tr": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"br": {}, "article": {}, "section": {}, "blockquote": {}, "pre": {},
}

func (s *HTMLStrategy) Extract(_ context.Context, raw domain.RawDocument) (string, float64, error) {
	text := extractVisibleText(string(raw.Body))

	if len(strings.TrimSpace(text)) >= s.minBodyChars {
		return text, 0.9, nil
	}

	if summary := strings.TrimSpace(raw.Summary); summary != "" {
		fallback := extractVisibleText(summary)
		if strings.TrimSpace(fallback) == "" {
			fallback = summary
		}
		return fallback, 0.4, nil
	}

	if strings.TrimSpace(text) != "" {
		return text, 0.5, nil
	}
	return "", 0, domain.WrapError(domain.ErrExtraction, "extract html",
		errors.New("no visible text and no summary fallback"))
}

// extractVisibleText walks the token stream, skipping chrome subtrees and
// consent-banner containers by class/id hints.
func extractVisibleText(source string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(source))

	var b strings.Builder
	depth := 0
	skipUntil := -1 // depth at which the current skipped subtree started

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return collapseBlankLines(b.String())

		case html.StartTagToken:
			token := tokenizer.Token()
			if _, void := voidElements[token.Data]; void {
				if skipUntil < 0 && token.Data == "br" {
					b.WriteByte('\n')
				}
				continue
			}
			depth++
			if skipUntil >= 0 {
				continue
			}
			if shouldSkipElement(token) {
				skipUntil = depth
				continue
			}
			if _, block := blockElements[token.Data]; block {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			token := tokenizer.Token()
			if _, void := voidElements[token.Data]; void {
				continue
			}
			if skipUntil >= 0 && depth == skipUntil {
				skipUntil = -1
			}
			depth--
			if skipUntil < 0 {
				if _, block := blockElements[token.Data]; block {
					b.WriteByte('\n')
				}
			}

		case html.SelfClosingTagToken:
			token := tokenizer.Token()
			if skipUntil < 0 && token.Data == "br" {
				b.WriteByte('\n')
			}

		case html.TextToken:
			if skipUntil >= 0 {
				continue
			}
			if text := strings.TrimSpace(tokenizer.Token().Data); text != "" {
				b.WriteString(text)
				b.WriteByte(' ')
			}
		}
	}
}

func shouldSkipElement(token html.Token) bool {
	if _, skip := skipElements[token.Data]; skip {
		return true
	}
	for _, attr := range token.Attr {
		if attr.Key != "class" && attr.Key != "id" && attr.Key != "role" {
			continue
		}
		value := strings.ToLower(attr.Val)
		for _, hint := range skipClassHints {
			if strings.Contains(value, hint) {
				return true
			}
		}
	}
	return false
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
