package textproc

import (
	"regexp"
	"strings"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

type refPattern struct {
	kind string
	re   *regexp.Regexp
	join string
}

// ReferenceExtractor pulls structured legal citations out of normalized
// text. Surface forms are kept as extracted; canonical unification of
// abbreviated vs. spelled-out forms is an open improvement.
type ReferenceExtractor struct {
	patterns []refPattern
}

func NewReferenceExtractor() *ReferenceExtractor {
	return &ReferenceExtractor{
		patterns: []refPattern{
			{kind: "decreto_legislativo", join: "/",
				re: regexp.MustCompile(`(?i)\b(?:d\.?\s?lgs\.?|decreto\s+legislativo)\s*(?:n\.?\s*)?(\d+)\s*/\s*(\d{4})`)},
			{kind: "decreto_legge", join: "/",
				re: regexp.MustCompile(`(?i)\b(?:d\.?l\.|decreto[\s-]legge)\s*(?:n\.?\s*)?(\d+)\s*/\s*(\d{4})`)},
			{kind: "dpr", join: "/",
				re: regexp.MustCompile(`(?i)\bd\.?p\.?r\.?\s*(?:n\.?\s*)?(\d+)\s*/\s*(\d{4})`)},
			{kind: "legge", join: "/",
				re: regexp.MustCompile(`(?i)\b(?:legge|l\.)\s*(?:n\.?\s*)?(\d+)\s*/\s*(\d{4})`)},
			{kind: "circolare", join: "/",
				re: regexp.MustCompile(`(?i)\bcircolare\s*(?:n\.?\s*)?(\d+)(?:\s*/\s*([A-Z]))?`)},
			{kind: "risoluzione", join: "/",
				re: regexp.MustCompile(`(?i)\brisoluzione\s*(?:n\.?\s*)?(\d+)(?:\s*/\s*([A-Z]))?`)},
			{kind: "articolo",
				re: regexp.MustCompile(`(?i)\b(?:artt?\.|articolo)\s*(\d+(?:[\s-]*(?:bis|ter|quater|quinquies))?)`)},
			{kind: "comma",
				re: regexp.MustCompile(`(?i)\bcomma\s+(\d+)`)},
			{kind: "lettera",
				re: regexp.MustCompile(`(?i)\blett(?:era)?\.?\s*([a-z])\)`)},
		},
	}
}

// Extract returns the citation map and the spans each citation was found at.
func (e *ReferenceExtractor) Extract(text string) (domain.ReferenceMap, []domain.ReferenceSpan) {
	refs := make(domain.ReferenceMap)
	var spans []domain.ReferenceSpan

	// Patterns run in priority order; a later, more generic pattern
	// ("legge") must not re-claim text already matched by a specific one
	// ("decreto-legge").
	for _, p := range e.patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if overlapsAny(spans, m[0], m[1]) {
				continue
			}
			value := buildRefValue(text, m, p.join)
			if value == "" {
				continue
			}
			if !contains(refs[p.kind], value) {
				refs[p.kind] = append(refs[p.kind], value)
			}
			spans = append(spans, domain.ReferenceSpan{
				Kind:  p.kind,
				Value: value,
				Start: m[0],
				End:   m[1],
			})
		}
	}
	if len(refs) == 0 {
		return nil, nil
	}
	return refs, spans
}

func buildRefValue(text string, match []int, join string) string {
	var parts []string
	for g := 1; g*2 < len(match); g++ {
		start, end := match[g*2], match[g*2+1]
		if start < 0 {
			continue
		}
		part := strings.TrimSpace(text[start:end])
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	if join == "" {
		join = " "
	}
	return strings.ToLower(strings.Join(parts, join))
}

func overlapsAny(spans []domain.ReferenceSpan, start, end int) bool {
	for _, s := range spans {
		if start < s.End && end > s.Start {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
