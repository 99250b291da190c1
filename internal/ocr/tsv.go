package ocr

import (
	"strconv"
	"strings"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

// Tesseract TSV columns:
// level, page_num, block_num, par_num, line_num, word_num,
// left, top, width, height, conf, text
const (
	colLevel  = 0
	colPage   = 1
	colLeft   = 6
	colTop    = 7
	colWidth  = 8
	colHeight = 9
	colConf   = 10
	colText   = 11
	tsvCols   = 12

	wordLevel = 5 // level 5 rows are words; lower levels are layout containers
)

// ParseTSV converts tesseract TSV output into word tokens. pageOffset
// is the global 0-based page of the run's first page, so multi-page
// PDFs (one tesseract run per rendered page) keep global page numbers
// across runs. seqOffset continues the global reading-order sequence.
//
// Rows with conf == -1 (layout rows) and empty text are skipped. Word
// confidences arrive in 0..100 and are normalized to 0..1.
func ParseTSV(tsv []byte, pageOffset, seqOffset int) []fact.Token {
	lines := strings.Split(string(tsv), "\n")
	tokens := make([]fact.Token, 0, len(lines))
	seq := seqOffset

	for i, ln := range lines {
		if i == 0 || ln == "" { // header or trailing blank
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < tsvCols {
			continue
		}
		if lvl, err := strconv.Atoi(cols[colLevel]); err != nil || lvl != wordLevel {
			continue
		}
		text := strings.TrimSpace(cols[colText])
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[colConf], 32)
		if err != nil || conf < 0 {
			continue
		}
		page, _ := strconv.Atoi(cols[colPage])
		left, _ := strconv.Atoi(cols[colLeft])
		top, _ := strconv.Atoi(cols[colTop])
		width, _ := strconv.Atoi(cols[colWidth])
		height, _ := strconv.Atoi(cols[colHeight])

		tokens = append(tokens, fact.Token{
			Page:       pageOffset + page - 1,
			BBox:       fact.BBox{Left: left, Top: top, Width: width, Height: height},
			Text:       text,
			Confidence: float32(conf / 100.0),
			Seq:        seq,
		})
		seq++
	}
	return tokens
}
