// Package export renders digests into CSV and XLSX for downstream
// review tooling.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
)

// Service is a tiny façade that flattens digests into tabular output.
type Service struct {
	schema *schema.Schema
	logger *slog.Logger
}

func NewService(sch *schema.Schema, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{schema: sch, logger: logger}
}

// Row is one exported fact: an accepted synthesis flattened for a
// spreadsheet audience.
type Row struct {
	ArtifactID string
	Category   string
	Type       string
	Value      string
	Confidence float32
	Page       int
	Span       string
}

// Rows flattens a digest into export rows in category declaration
// order, multi-valued facts in document order within each category.
func (s *Service) Rows(d fact.Digest) []Row {
	var rows []Row
	for _, id := range s.schema.Order() {
		cat, _ := s.schema.Category(id)
		for _, syn := range d.Syntheses[id] {
			page := 0
			if len(syn.RawSpan.Tokens) > 0 {
				page = syn.RawSpan.Tokens[0].Page + 1
			}
			rows = append(rows, Row{
				ArtifactID: d.SourceArtifactID,
				Category:   string(id),
				Type:       string(cat.Type),
				Value:      syn.Value.String(),
				Confidence: syn.Confidence,
				Page:       page,
				Span:       truncate(syn.RawSpan.Text(), 140),
			})
		}
	}
	return rows
}

var csvHeader = []string{"artifact_id", "category", "type", "value", "confidence", "page", "span"}

// WriteCSV streams digests to w, one row per accepted fact.
func (s *Service) WriteCSV(w io.Writer, digests []fact.Digest) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("csv header: %w", err)
	}
	n := 0
	for _, d := range digests {
		for _, r := range s.Rows(d) {
			rec := []string{
				r.ArtifactID,
				r.Category,
				r.Type,
				r.Value,
				strconv.FormatFloat(float64(r.Confidence), 'f', 2, 32),
				strconv.Itoa(r.Page),
				r.Span,
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("csv row: %w", err)
			}
			n++
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	s.logger.Info("export.csv.ok", "digests", len(digests), "rows", n)
	return nil
}

// WriteJSON emits the digests verbatim, indented.
func (s *Service) WriteJSON(w io.Writer, digests []fact.Digest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(digests)
}

// XLSXBytes builds a workbook with a Facts sheet for accepted
// syntheses and an Exceptions sheet for rejected and flagged results.
func (s *Service) XLSXBytes(digests []fact.Digest) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const factsSheet = "Facts"
	const exceptionsSheet = "Exceptions"

	if err := f.SetSheetName(f.GetSheetName(0), factsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(exceptionsSheet); err != nil {
		return nil, err
	}
	if idx, _ := f.GetSheetIndex(factsSheet); idx >= 0 {
		f.SetActiveSheet(idx)
	}

	write := func(sheet string, row, col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	factHeaders := []string{"Artifact", "Category", "Type", "Value", "Confidence", "Page", "Source Span"}
	for i, h := range factHeaders {
		write(factsSheet, 1, i+1, h)
	}

	row := 2
	for _, d := range digests {
		for _, r := range s.Rows(d) {
			write(factsSheet, row, 1, r.ArtifactID)
			write(factsSheet, row, 2, r.Category)
			write(factsSheet, row, 3, r.Type)
			write(factsSheet, row, 4, r.Value)
			write(factsSheet, row, 5, float64(r.Confidence))
			write(factsSheet, row, 6, r.Page)
			write(factsSheet, row, 7, r.Span)
			row++
		}
	}

	excHeaders := []string{"Artifact", "Category", "Status", "Reasons", "Source Span"}
	for i, h := range excHeaders {
		write(exceptionsSheet, 1, i+1, h)
	}
	excRow := 2
	for _, d := range digests {
		for _, vr := range d.Rejected {
			write(exceptionsSheet, excRow, 1, d.SourceArtifactID)
			write(exceptionsSheet, excRow, 2, string(vr.Synthesis.Category))
			write(exceptionsSheet, excRow, 3, string(vr.Status))
			write(exceptionsSheet, excRow, 4, joinReasons(vr.Reasons))
			write(exceptionsSheet, excRow, 5, truncate(vr.Synthesis.RawSpan.Text(), 140))
			excRow++
		}
	}

	_ = f.SetColWidth(factsSheet, "A", "A", 38)
	_ = f.SetColWidth(factsSheet, "B", "C", 22)
	_ = f.SetColWidth(factsSheet, "D", "D", 24)
	_ = f.SetColWidth(factsSheet, "E", "F", 12)
	_ = f.SetColWidth(factsSheet, "G", "G", 60)
	_ = f.SetColWidth(exceptionsSheet, "A", "A", 38)
	_ = f.SetColWidth(exceptionsSheet, "B", "C", 22)
	_ = f.SetColWidth(exceptionsSheet, "D", "D", 56)
	_ = f.SetColWidth(exceptionsSheet, "E", "E", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"digests", len(digests),
		"rows", row-2,
		"exceptions", excRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

// truncate cuts s to at most n runes, never mid-sequence.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return string(r[:1])
	}
	return string(r[:n-1]) + "…"
}
