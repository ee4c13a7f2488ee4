package domain

// ReferenceSpan locates one extracted citation inside the normalized text
// so chunking can propagate references to the chunks covering them.
type ReferenceSpan struct {
	Kind  string
	Value string
	Start int
	End   int
}

// TextChunk is one retrieval-sized split of a normalized document. Start/End
// are byte offsets into the source text.
type TextChunk struct {
	Text    string
	Heading string
	Tokens  int
	Quality float64
	Start   int
	End     int
}

// ReferencesInRange filters spans overlapping [start, end) into a map for
// one chunk.
func ReferencesInRange(spans []ReferenceSpan, start, end int) ReferenceMap {
	var refs ReferenceMap
	for _, s := range spans {
		if s.Start >= end || s.End <= start {
			continue
		}
		if refs == nil {
			refs = make(ReferenceMap)
		}
		if !containsString(refs[s.Kind], s.Value) {
			refs[s.Kind] = append(refs[s.Kind], s.Value)
		}
	}
	return refs
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
