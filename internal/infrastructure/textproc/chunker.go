package textproc

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mickgian/pratikoai-kb/internal/config"
	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// Chunker splits normalized text into overlapping, sentence-respecting,
// token-bounded units. When the document exposes article/section structure
// it splits at those boundaries first and carries the nearest heading into
// each chunk as context.
type Chunker struct {
	cfg       config.ChunkerTuning
	abbrev    map[string]struct{}
	headingRe *regexp.Regexp
}

func NewChunker(cfg config.ChunkerTuning) *Chunker {
	abbrev := make(map[string]struct{}, len(cfg.Abbreviations))
	for _, a := range cfg.Abbreviations {
		abbrev[strings.ToLower(strings.TrimSuffix(a, "."))] = struct{}{}
	}
	return &Chunker{
		cfg:    cfg,
		abbrev: abbrev,
		headingRe: regexp.MustCompile(
			`(?mi)^(?:art(?:icolo)?\.?\s+\d+[a-z\- ]*|titolo\s+[ivxlc]+.*|capo\s+[ivxlc]+.*|sezione\s+[ivxlc]+.*|allegato\s+[a-z0-9]+.*)\s*$`),
	}
}

// Split returns quality-gated chunks covering text. Chunks of one document
// are contiguous and ordered; adjacent chunks overlap by at most the
// configured fraction of the token budget.
func (c *Chunker) Split(text string) []domain.TextChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []domain.TextChunk
	for _, section := range c.sections(text) {
		sentences := c.sentences(section.body)
		if len(sentences) == 0 {
			continue
		}
		out = append(out, c.pack(section, sentences)...)
	}

	kept := out[:0]
	for _, chunk := range out {
		if chunk.Quality >= c.cfg.MinQuality {
			kept = append(kept, chunk)
		}
	}
	return kept
}

// EstimateTokens applies the locale-tuned character-to-token heuristic.
func (c *Chunker) EstimateTokens(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return int(math.Ceil(float64(runes) / c.cfg.CharsPerToken))
}

type section struct {
	heading string
	body    string
	offset  int
}

// sections splits at structural headings when at least two are present,
// otherwise returns the whole text as a single headingless section.
func (c *Chunker) sections(text string) []section {
	matches := c.headingRe.FindAllStringIndex(text, -1)
	if len(matches) < 2 {
		return []section{{body: text}}
	}

	var out []section
	if lead := strings.TrimSpace(text[:matches[0][0]]); lead != "" {
		out = append(out, section{body: text[:matches[0][0]]})
	}
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		heading := strings.TrimSpace(text[m[0]:m[1]])
		out = append(out, section{
			heading: heading,
			body:    text[m[1]:end],
			offset:  m[1],
		})
	}
	return out
}

type sentence struct {
	text  string
	start int
	end   int
}

// sentences splits on terminal punctuation, protecting the abbreviation
// list so "Art. 12" or "D.Lgs. 33/2013" never opens a false boundary.
// Offsets are byte positions within body.
func (c *Chunker) sentences(body string) []sentence {
	runes := []rune(body)
	byteAt := make([]int, len(runes)+1)
	pos := 0
	for i, r := range runes {
		byteAt[i] = pos
		pos += utf8.RuneLen(r)
	}
	byteAt[len(runes)] = pos

	var out []sentence
	start := 0

	flush := func(end int) {
		raw := string(runes[start:end])
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			lead := len(raw) - len(strings.TrimLeft(raw, " \t\n"))
			out = append(out, sentence{
				text:  trimmed,
				start: byteAt[start] + lead,
				end:   byteAt[start] + lead + len(trimmed),
			})
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			flush(i)
			continue
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' && c.isProtectedDot(runes, i) {
			continue
		}
		if i+1 < len(runes) && !boundaryFollows(runes, i+1) {
			continue
		}
		flush(i + 1)
	}
	flush(len(runes))
	return out
}

func (c *Chunker) isProtectedDot(runes []rune, i int) bool {
	// number dots ("art. 12.3") and single-letter initials stay inside
	if i+1 < len(runes) && unicode.IsDigit(runes[i+1]) {
		return true
	}
	word := trailingWord(runes, i)
	if word == "" {
		return false
	}
	_, protected := c.abbrev[strings.ToLower(word)]
	return protected
}

func trailingWord(runes []rune, dot int) string {
	j := dot
	for j > 0 {
		r := runes[j-1]
		if unicode.IsLetter(r) || r == '.' {
			j--
			continue
		}
		break
	}
	if j == dot {
		return ""
	}
	return strings.TrimSuffix(string(runes[j:dot]), ".")
}

func boundaryFollows(runes []rune, next int) bool {
	for next < len(runes) && (runes[next] == '"' || runes[next] == '\'' || runes[next] == ')') {
		next++
	}
	if next >= len(runes) {
		return true
	}
	return unicode.IsSpace(runes[next])
}

// pack greedily fills the token budget with whole sentences, then starts
// the next chunk from the trailing sentences that fit the overlap budget.
func (c *Chunker) pack(sec section, sentences []sentence) []domain.TextChunk {
	budget := c.cfg.TokenBudget
	overlapBudget := int(float64(budget) * c.cfg.OverlapFraction)

	var out []domain.TextChunk
	i := 0
	for i < len(sentences) {
		tokens := 0
		j := i
		for j < len(sentences) {
			t := c.EstimateTokens(sentences[j].text)
			if j > i && tokens+t > budget {
				break
			}
			tokens += t
			j++
		}

		var parts []string
		for _, s := range sentences[i:j] {
			parts = append(parts, s.text)
		}
		text := strings.Join(parts, " ")
		out = append(out, domain.TextChunk{
			Text:    text,
			Heading: sec.heading,
			Tokens:  tokens,
			Quality: chunkQuality(text),
			Start:   sec.offset + sentences[i].start,
			End:     sec.offset + sentences[j-1].end,
		})

		if j >= len(sentences) {
			break
		}

		// walk back over trailing sentences until the overlap budget is spent
		next := j
		overlap := 0
		for next > i+1 {
			t := c.EstimateTokens(sentences[next-1].text)
			if overlap+t > overlapBudget {
				break
			}
			overlap += t
			next--
		}
		i = next
	}
	return out
}

func chunkQuality(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	lengthScore := math.Min(float64(utf8.RuneCountInString(trimmed))/200.0, 1.0)
	return 0.4*printableRatio(trimmed) + 0.4*alphaRatio(trimmed) + 0.2*lengthScore
}

