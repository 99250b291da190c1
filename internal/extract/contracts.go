// Package extract defines the stage-1 contract: artifact bytes in,
// positioned tokens out. The OCR engine behind it is an opaque
// collaborator; pipeline code depends only on TextExtractor.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

// TextExtractor is Stage 1: artifact -> tokens.
type TextExtractor interface {
	Extract(ctx context.Context, artifact []byte, mimeType string) (TokensResult, error)
}

type TokensResult struct {
	Tokens   []fact.Token
	Pages    int
	Method   string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language string
	Duration time.Duration
	Warnings []string
}

// ExtractionError is fatal for the whole artifact: the artifact was
// unreadable or the OCR backend unreachable. No partial digest is
// produced when it occurs.
type ExtractionError struct {
	ArtifactID string
	MIMEType   string
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for artifact %s (%s): %v", e.ArtifactID, e.MIMEType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
