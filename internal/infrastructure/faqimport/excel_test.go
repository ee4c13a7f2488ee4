package faqimport

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, ref, &row); err != nil {
			t.Fatalf("set row %d: %v", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestParseWorkbookItalianHeaders(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Domanda", "Risposta", "Categoria", "Esperto", "Fiducia", "Qualità", "Citazioni"},
		{"Quando scade l'IVA?", "Il giorno 16 del mese.", "fiscale", "exp-1", "0,9", "90%", "art. 17; circolare 9/E"},
		{"", "risposta orfana", "", "", "", "", ""},
		{"Domanda senza risposta?", "", "", "", "", "", ""},
	})

	entries, err := ParseWorkbook(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}

	entry := entries[0]
	if entry.Question != "Quando scade l'IVA?" || entry.Answer != "Il giorno 16 del mese." {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Category != "fiscale" || entry.ExpertID != "exp-1" {
		t.Fatalf("metadata = %q/%q", entry.Category, entry.ExpertID)
	}
	if entry.Trust != 0.9 || entry.Quality != 0.9 {
		t.Fatalf("trust/quality = %v/%v", entry.Trust, entry.Quality)
	}
	if len(entry.Citations) != 2 || entry.Citations[0] != "art. 17" || entry.Citations[1] != "circolare 9/E" {
		t.Fatalf("citations = %v", entry.Citations)
	}
}

func TestParseWorkbookEnglishHeadersAndDefaults(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Question", "Answer"},
		{"Come si calcola l'IRAP?", "Sulla base imponibile regionale."},
	})

	entries, err := ParseWorkbook(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Trust != 0.8 || entries[0].Quality != 0.8 {
		t.Fatalf("defaults not applied: %v/%v", entries[0].Trust, entries[0].Quality)
	}
	if entries[0].Citations != nil {
		t.Fatalf("citations = %v", entries[0].Citations)
	}
}

func TestParseWorkbookMissingRequiredColumns(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Categoria", "Esperto"},
		{"fiscale", "exp-1"},
	})

	if _, err := ParseWorkbook(buf); err == nil {
		t.Fatalf("expected error for missing question/answer columns")
	}
}

func TestParseWorkbookHeaderOnly(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Domanda", "Risposta"},
	})

	if _, err := ParseWorkbook(buf); err == nil {
		t.Fatalf("expected error for sheet without data rows")
	}
}

func TestParseWorkbookGarbageInput(t *testing.T) {
	if _, err := ParseWorkbook(bytes.NewReader([]byte("non sono un xlsx"))); err == nil {
		t.Fatalf("expected error for invalid workbook")
	}
}

func TestParseRatio(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"", 0.8},
		{"0.9", 0.9},
		{"0,75", 0.75},
		{"90%", 0.9},
		{"45", 0.45},
		{"boh", 0.8},
		{"-3", 0.8},
	}
	for _, tc := range cases {
		if got := parseRatio(tc.raw, 0.8); got != tc.want {
			t.Errorf("parseRatio(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
