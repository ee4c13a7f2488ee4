package textproc

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalizer is a deterministic, idempotent cleanup pass for Italian
// regulatory text. It only touches encoding and whitespace; semantic
// content is never shortened.
type Normalizer struct {
	hyphenBreak  *regexp.Regexp
	yearBreak    *regexp.Regexp
	dateAnnotate *regexp.Regexp
	spaceRun     *regexp.Regexp
	blankRun     *regexp.Regexp
	trailingWS   *regexp.Regexp
}

var monthNames = [...]string{
	"gennaio", "febbraio", "marzo", "aprile", "maggio", "giugno",
	"luglio", "agosto", "settembre", "ottobre", "novembre", "dicembre",
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		// word-\nword is rejoined only when the continuation is lower case,
		// so legitimate compound hyphens ("decreto-legge") survive.
		hyphenBreak: regexp.MustCompile(`(\p{L})-[ \t]*\n[ \t]*(\p{Ll})`),
		// digits across a line break are rejoined only when they reassemble
		// a 4-digit year, so enumerations ("comma 1\n2.") keep their
		// boundaries.
		yearBreak: regexp.MustCompile(`\b(\d{1,3})[ \t]*\n[ \t]*(\d{1,3})\b`),
		// optional existing annotation group keeps the transform idempotent
		dateAnnotate: regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})(\s*\(\p{Ll}+ \d{4}\))?`),
		spaceRun:     regexp.MustCompile(`[ \t]+`),
		blankRun:     regexp.MustCompile(`\n{3,}`),
		trailingWS:   regexp.MustCompile(`[ \t]+\n`),
	}
}

func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}

	out := decodeEntities(text)
	out = stripZeroWidth(out)
	out = canonicalizePunctuation(out)
	out = norm.NFC.String(out)

	out = n.hyphenBreak.ReplaceAllString(out, "$1$2")
	out = n.rejoinSplitYears(out)
	out = n.annotateDates(out)

	out = n.trailingWS.ReplaceAllString(out, "\n")
	out = n.spaceRun.ReplaceAllString(out, " ")
	out = n.blankRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// rejoinSplitYears repairs years broken by a page or line break
// ("20\n13" in "d.lgs. 33/20\n13"). Anything that does not reassemble a
// plausible year is left alone.
func (n *Normalizer) rejoinSplitYears(s string) string {
	return n.yearBreak.ReplaceAllStringFunc(s, func(match string) string {
		groups := n.yearBreak.FindStringSubmatch(match)
		joined := groups[1] + groups[2]
		if len(joined) != 4 {
			return match
		}
		if year := parseInt(joined); year < 1800 || year > 2099 {
			return match
		}
		return joined
	})
}

// decodeEntities unescapes until a fixpoint so that double-encoded feeds
// ("&amp;amp;") normalize the same whether cleaned once or twice.
func decodeEntities(s string) string {
	for i := 0; i < 4; i++ {
		decoded := html.UnescapeString(s)
		if decoded == s {
			return s
		}
		s = decoded
	}
	return s
}

func stripZeroWidth(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, s)
}

func canonicalizePunctuation(s string) string {
	replacer := strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`,
		"‘", "'", "’", "'", "‚", "'",
		"–", "-", "—", "-", "−", "-",
		"\u00a0", " ", "\r\n", "\n", "\r", "\n",
	)
	return replacer.Replace(s)
}

// annotateDates appends the Italian month name after dd/mm/yyyy dates so
// lexical search finds "marzo 2024" without losing the original form.
func (n *Normalizer) annotateDates(s string) string {
	return n.dateAnnotate.ReplaceAllStringFunc(s, func(match string) string {
		groups := n.dateAnnotate.FindStringSubmatch(match)
		if groups[4] != "" {
			return match
		}
		month := parseInt(groups[2])
		if month < 1 || month > 12 {
			return match
		}
		return fmt.Sprintf("%s (%s %s)", match, monthNames[month-1], groups[3])
	})
}

func parseInt(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
