package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
)

// Fingerprint hashes normalized text so the same document served at a
// different locator is recognized.
func Fingerprint(normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return hex.EncodeToString(sum[:])
}

// SubjectKey identifies what a document is about, independent of its exact
// wording: normalized title plus the sorted citation set. Two items sharing
// a subject key but differing in content fingerprint are treated as a
// supersession candidate pair.
func SubjectKey(title string, refs ReferenceMap, docType DocumentType) string {
	var parts []string
	if t := foldKey(title); t != "" {
		parts = append(parts, t)
	}
	var cites []string
	for kind, values := range refs {
		for _, v := range values {
			cites = append(cites, kind+":"+v)
		}
	}
	sort.Strings(cites)
	parts = append(parts, cites...)
	parts = append(parts, string(docType))

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// NearIdenticalText reports whether two normalized texts differ only
// trivially, using Jaccard similarity over the token sets.
func NearIdenticalText(a, b string) bool {
	if a == b {
		return true
	}
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return len(ta) == len(tb)
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter)/float64(union) >= 0.95
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return out
}

func foldKey(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
