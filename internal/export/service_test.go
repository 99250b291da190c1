package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
)

func testDigest() fact.Digest {
	span := func(seq int, words ...string) fact.Snippet {
		tokens := make([]fact.Token, len(words))
		for i, w := range words {
			tokens[i] = fact.Token{Text: w, Seq: seq + i, Page: 0}
		}
		return fact.Snippet{Tokens: tokens}
	}
	return fact.Digest{
		SourceArtifactID: "artifact-1",
		CreatedAt:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Syntheses: map[fact.CategoryID][]fact.Synthesis{
			"invoice_number": {{
				Category:   "invoice_number",
				RawSpan:    span(0, "INV-001"),
				Value:      fact.Value{Type: fact.TypeText, Text: "INV-001"},
				Confidence: 0.92,
			}},
			"invoice_total": {{
				Category:   "invoice_total",
				RawSpan:    span(10, "$100.00"),
				Value:      fact.Value{Type: fact.TypeMoney, Money: &fact.Money{Amount: "100.00", Currency: "USD"}},
				Confidence: 0.88,
			}},
			"line_item_description": {
				{Category: "line_item_description", RawSpan: span(2, "Hosting"), Value: fact.Value{Type: fact.TypeText, Text: "Hosting"}, Confidence: 0.8},
				{Category: "line_item_description", RawSpan: span(5, "Support"), Value: fact.Value{Type: fact.TypeText, Text: "Support"}, Confidence: 0.8},
			},
		},
		Rejected: []fact.ValidationResult{{
			Synthesis: fact.Synthesis{Category: "due_date", RawSpan: span(20, "someday")},
			Status:    fact.StatusFlagged,
			Reasons:   []string{"semantic check failed", "low confidence"},
		}},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	sch, err := schema.Default()
	if err != nil {
		t.Fatalf("loading default schema: %v", err)
	}
	return NewService(sch, nil)
}

func TestRowsFollowSchemaOrder(t *testing.T) {
	svc := newTestService(t)
	rows := svc.Rows(testDigest())
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	// invoice_number declares before invoice_total, which declares
	// before line items.
	if rows[0].Category != "invoice_number" || rows[1].Category != "invoice_total" {
		t.Fatalf("row order = %s, %s", rows[0].Category, rows[1].Category)
	}
	if rows[2].Value != "Hosting" || rows[3].Value != "Support" {
		t.Fatalf("line items out of document order: %s, %s", rows[2].Value, rows[3].Value)
	}
	if rows[1].Value != "USD 100.00" {
		t.Fatalf("money rendering = %q", rows[1].Value)
	}
}

func TestWriteCSV(t *testing.T) {
	svc := newTestService(t)
	var buf bytes.Buffer
	if err := svc.WriteCSV(&buf, []fact.Digest{testDigest()}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing produced CSV: %v", err)
	}
	if len(records) != 5 { // header + 4 facts
		t.Fatalf("records = %d, want 5", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(csvHeader, ",") {
		t.Fatalf("header = %v", records[0])
	}
	if records[1][0] != "artifact-1" || records[1][1] != "invoice_number" || records[1][3] != "INV-001" {
		t.Fatalf("first fact row = %v", records[1])
	}
	if records[2][4] != "0.88" {
		t.Fatalf("confidence cell = %q", records[2][4])
	}
}

func TestXLSXBytes(t *testing.T) {
	svc := newTestService(t)
	b, err := svc.XLSXBytes([]fact.Digest{testDigest()})
	if err != nil {
		t.Fatalf("XLSXBytes: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("opening produced workbook: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("Facts", "D2")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if got != "INV-001" {
		t.Fatalf("Facts!D2 = %q, want INV-001", got)
	}

	status, err := f.GetCellValue("Exceptions", "C2")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if status != "flagged" {
		t.Fatalf("Exceptions!C2 = %q, want flagged", status)
	}
}

func TestTruncateCutsOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 150)
	got := truncate(long, 140)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated span is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 140 {
		t.Fatalf("rune count = %d, want 140", n)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("missing ellipsis: %q", got)
	}
	if short := truncate("abc", 140); short != "abc" {
		t.Fatalf("short string mangled: %q", short)
	}
}

func TestWriteJSONRoundTrips(t *testing.T) {
	svc := newTestService(t)
	var buf bytes.Buffer
	if err := svc.WriteJSON(&buf, []fact.Digest{testDigest()}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"source_artifact_id": "artifact-1"`) {
		t.Fatalf("json output missing artifact id: %s", buf.String())
	}
}
