package faqimport

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// ParseWorkbook reads expert FAQ rows from the first sheet of an xlsx
// workbook. The header row is matched case-insensitively against Italian
// and English column names; unrecognized columns are ignored.
func ParseWorkbook(r io.Reader) ([]domain.GoldenEntry, error) {
	workbook, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %q has no data rows", sheets[0])
	}

	columns := mapColumns(rows[0])
	if columns["question"] < 0 || columns["answer"] < 0 {
		return nil, fmt.Errorf("sheet %q is missing question/answer columns", sheets[0])
	}

	var out []domain.GoldenEntry
	for _, row := range rows[1:] {
		entry := domain.GoldenEntry{
			Question: cell(row, columns["question"]),
			Answer:   cell(row, columns["answer"]),
			Category: cell(row, columns["category"]),
			ExpertID: cell(row, columns["expert"]),
			Trust:    parseRatio(cell(row, columns["trust"]), 0.8),
			Quality:  parseRatio(cell(row, columns["quality"]), 0.8),
		}
		if entry.Question == "" || entry.Answer == "" {
			continue
		}
		if citations := cell(row, columns["citations"]); citations != "" {
			for _, c := range strings.Split(citations, ";") {
				if c = strings.TrimSpace(c); c != "" {
					entry.Citations = append(entry.Citations, c)
				}
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

var headerAliases = map[string]string{
	"domanda":   "question",
	"question":  "question",
	"risposta":  "answer",
	"answer":    "answer",
	"categoria": "category",
	"category":  "category",
	"esperto":   "expert",
	"expert":    "expert",
	"trust":     "trust",
	"fiducia":   "trust",
	"quality":   "quality",
	"qualita":   "quality",
	"qualità":   "quality",
	"citazioni": "citations",
	"citations": "citations",
}

func mapColumns(header []string) map[string]int {
	columns := map[string]int{
		"question": -1, "answer": -1, "category": -1,
		"expert": -1, "trust": -1, "quality": -1, "citations": -1,
	}
	for i, name := range header {
		key, ok := headerAliases[strings.ToLower(strings.TrimSpace(name))]
		if ok && columns[key] < 0 {
			columns[key] = i
		}
	}
	return columns
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseRatio accepts "0.9", "0,9" or "90%" and falls back when absent.
func parseRatio(raw string, fallback float64) float64 {
	if raw == "" {
		return fallback
	}
	raw = strings.ReplaceAll(raw, ",", ".")
	percent := strings.HasSuffix(raw, "%")
	raw = strings.TrimSuffix(raw, "%")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	if percent || v > 1 {
		v /= 100
	}
	if v < 0 || v > 1 {
		return fallback
	}
	return v
}
