// Package fact holds the data model of the invoice facts extraction
// pipeline: positioned text tokens, categorized snippets, synthesized
// values and the final digest.
package fact

// BBox is a token bounding box in page pixel coordinates.
type BBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Token is a single recognized word as produced by the text extractor.
// Tokens are immutable once produced and ordered by page, then by the
// OCR engine's natural reading order.
type Token struct {
	Page       int     `json:"page"` // 0-based
	BBox       BBox    `json:"bbox"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"` // 0..1

	// Seq is the token's position in the extractor's reading order.
	// It is the sort key used to restore document order after
	// concurrent per-snippet processing.
	Seq int `json:"seq"`
}

// SpanText joins token texts with single spaces, in order.
func SpanText(tokens []Token) string {
	n := 0
	for _, t := range tokens {
		n += len(t.Text) + 1
	}
	b := make([]byte, 0, n)
	for i, t := range tokens {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, t.Text...)
	}
	return string(b)
}
