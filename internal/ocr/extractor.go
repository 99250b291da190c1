// Package ocr recovers positioned text tokens from invoice artifacts.
// It wraps the tesseract and poppler binaries the way the original
// extraction flow does (rasterize PDF pages, OCR each page to TSV) and
// short-circuits through the PDF text layer when one is present. The
// package does no semantic interpretation: it is purely positional text
// recovery.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/constants"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"

	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI for scanned PDFs, default 300
	MaxPages      int // 0 = no limit

	PSM int // e.g., 6 for a uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	// MinTextLayerTokens is the threshold below which a PDF's native
	// text layer is considered absent and the OCR path is used instead.
	MinTextLayerTokens int
}

type Result struct {
	Tokens   []fact.Token
	Pages    int
	Method   string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language string
	Duration time.Duration
	Warnings []string
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinTextLayerTokens <= 0 {
		cfg.MinTextLayerTokens = 16
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Extract recovers tokens from raw artifact bytes. The artifact is
// spooled to a temp file for the external binaries.
func (e *Extractor) Extract(ctx context.Context, artifact []byte, mimeType string) (Result, error) {
	start := time.Now()

	format := constants.MapMIMEToFormat(mimeType)
	if format == "" {
		return Result{}, fmt.Errorf("unsupported mime type: %q", mimeType)
	}

	path, cleanup, err := spool(artifact, constants.MIMEExt(mimeType))
	if err != nil {
		return Result{}, fmt.Errorf("spool artifact: %w", err)
	}
	defer cleanup()

	e.logger.Debug("starting token extraction", "mime", mimeType, "bytes", len(artifact), "format", format)

	switch format {
	case constants.PDF:
		res, err := e.extractPDF(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	case constants.IMAGE:
		res, err := e.extractImage(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	default:
		return Result{}, fmt.Errorf("unsupported format: %q", format)
	}
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	// Prefer the native text layer when the PDF has one.
	if tokens, pages, err := e.pdfTextLayer(path); err == nil && len(tokens) >= e.cfg.MinTextLayerTokens {
		return Result{Tokens: tokens, Pages: pages, Method: "pdf-text", Language: e.cfg.TesseractLang}, nil
	}

	tmpDir, err := os.MkdirTemp("", "ife-pp-*")
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return Result{Warnings: []string{string(errb)}}, fmt.Errorf("pdftoppm: %w", err)
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return Result{}, fmt.Errorf("pdftoppm produced no images")
	}

	var tokens []fact.Token
	var warns []string
	for i, img := range matches {
		pageTokens, err := e.tesseractTSV(ctx, img, i, len(tokens))
		if err != nil {
			warns = append(warns, fmt.Sprintf("page %d: %v", i+1, err))
			continue
		}
		tokens = append(tokens, pageTokens...)
	}
	if len(tokens) == 0 && len(warns) > 0 {
		return Result{Warnings: warns}, fmt.Errorf("ocr produced no tokens: %s", warns[0])
	}
	return Result{Tokens: tokens, Pages: len(matches), Method: "pdf-ocr", Language: e.cfg.TesseractLang, Warnings: warns}, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (Result, error) {
	tokens, err := e.tesseractTSV(ctx, path, 0, 0)
	if err != nil {
		return Result{}, err
	}
	return Result{Tokens: tokens, Pages: 1, Method: "image-ocr", Language: e.cfg.TesseractLang}, nil
}

// tesseractTSV runs tesseract in TSV mode and parses word tokens.
// pageIndex is the 0-based global page of this run's first (and only)
// page; seqOffset continues the global reading-order sequence.
func (e *Extractor) tesseractTSV(ctx context.Context, path string, pageIndex, seqOffset int) ([]fact.Token, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", fmt.Sprintf("%d", e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract TSV: %w (%s)", err, truncate(string(errb), 512))
	}
	return ParseTSV(out, pageIndex, seqOffset), nil
}

func spool(artifact []byte, ext string) (string, func(), error) {
	if ext == "" {
		ext = "bin"
	}
	f, err := os.CreateTemp("", "ife-artifact-*."+ext)
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := f.Write(artifact); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
