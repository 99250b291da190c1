package ocr

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

// pdfTextLayer reads positioned text straight out of a PDF's text layer,
// skipping OCR entirely for born-digital invoices. Coordinates are PDF
// points with the origin at the bottom-left; only their relative order
// matters downstream. Native text gets confidence 1.0.
func (e *Extractor) pdfTextLayer(path string) ([]fact.Token, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	pages := r.NumPage()
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		pages = e.cfg.MaxPages
	}

	var tokens []fact.Token
	seq := 0
	for pageNum := 1; pageNum <= pages; pageNum++ {
		p := r.Page(pageNum)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, 0, fmt.Errorf("pdf text page %d: %w", pageNum, err)
		}
		for _, row := range rows {
			for _, w := range assembleWords(row.Content) {
				tokens = append(tokens, fact.Token{
					Page:       pageNum - 1,
					BBox:       w.bbox,
					Text:       w.text,
					Confidence: 1.0,
					Seq:        seq,
				})
				seq++
			}
		}
	}
	return tokens, pages, nil
}

type pdfWord struct {
	text string
	bbox fact.BBox
}

// assembleWords merges a row's text runs into words, splitting on
// whitespace runs and on horizontal gaps wider than a third of the
// font size.
func assembleWords(runs []pdf.Text) []pdfWord {
	var words []pdfWord
	var b strings.Builder
	var startX, endX, y, size float64

	flush := func() {
		text := strings.TrimSpace(b.String())
		if text != "" {
			words = append(words, pdfWord{
				text: text,
				bbox: fact.BBox{
					Left:   int(startX),
					Top:    int(y),
					Width:  int(endX - startX),
					Height: int(size),
				},
			})
		}
		b.Reset()
	}

	for _, t := range runs {
		if strings.TrimSpace(t.S) == "" {
			flush()
			continue
		}
		gap := size / 3
		if b.Len() > 0 && gap > 0 && t.X-endX > gap {
			flush()
		}
		if b.Len() == 0 {
			startX, y, size = t.X, t.Y, t.FontSize
		}
		b.WriteString(t.S)
		endX = t.X + t.W
		if t.FontSize > size {
			size = t.FontSize
		}
	}
	flush()
	return words
}
