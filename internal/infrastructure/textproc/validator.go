package textproc

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/mickgian/pratikoai-kb/internal/config"
	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// Validator gates extracted text before any expensive work happens. It
// never mutates the text it judges.
type Validator struct {
	cfg      config.ValidatorTuning
	patterns []string
}

func NewValidator(cfg config.ValidatorTuning) *Validator {
	patterns := make([]string, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Validator{cfg: cfg, patterns: patterns}
}

func (v *Validator) Validate(text string) error {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < v.cfg.MinLength {
		return domain.WrapError(domain.ErrRejected, "validate",
			fmt.Errorf("text too short: %d < %d", len(trimmed), v.cfg.MinLength))
	}

	// A single nav-term mention must not sink a legitimate short document;
	// rejection requires a high proportion of boilerplate lines.
	if ratio := v.boilerplateLineRatio(trimmed); ratio > v.cfg.BoilerplateRatio {
		return domain.WrapError(domain.ErrRejected, "validate",
			fmt.Errorf("boilerplate line ratio %.2f over %.2f", ratio, v.cfg.BoilerplateRatio))
	}

	if ratio := alnumRatio(trimmed); ratio < v.cfg.AlnumRatio {
		return domain.WrapError(domain.ErrRejected, "validate",
			errors.New("content does not look like text"))
	}
	return nil
}

func (v *Validator) boilerplateLineRatio(text string) float64 {
	lines := strings.Split(text, "\n")
	total, matched := 0, 0
	for _, line := range lines {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		total++
		for _, p := range v.patterns {
			if strings.Contains(line, p) {
				matched++
				break
			}
		}
	}
	if total == 0 {
		return 1
	}
	return float64(matched) / float64(total)
}

func alnumRatio(text string) float64 {
	total, alnum := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(alnum) / float64(total)
}

func printableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(printable) / float64(total)
}

func alphaRatio(text string) float64 {
	total, alpha := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(alpha) / float64(total)
}

// PageLooksExtracted reports whether natively extracted page text passes
// the printable and alphabetic gates; failing pages go to OCR.
func PageLooksExtracted(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	return printableRatio(trimmed) >= 0.85 || alphaRatio(trimmed) >= 0.55
}
