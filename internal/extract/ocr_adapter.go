package extract

import (
	"context"
	"log/slog"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/ocr"
)

// OCRAdapter implements TextExtractor on top of the tesseract/poppler
// extractor.
type OCRAdapter struct {
	e *ocr.Extractor
}

func NewOCRAdapter(e *ocr.Extractor, _ *slog.Logger) *OCRAdapter {
	return &OCRAdapter{e: e}
}

func (a *OCRAdapter) Extract(ctx context.Context, artifact []byte, mimeType string) (TokensResult, error) {
	r, err := a.e.Extract(ctx, artifact, mimeType)
	return TokensResult{
		Tokens:   r.Tokens,
		Pages:    r.Pages,
		Method:   r.Method,
		Language: r.Language,
		Duration: r.Duration,
		Warnings: r.Warnings,
	}, err
}
