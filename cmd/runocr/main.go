package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/constants"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/common"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/ocr"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <artifact-path>")
		os.Exit(2)
	}
	path := os.Args[1]

	mime := ""
	switch constants.NormalizeExt(filepath.Ext(path)) {
	case "pdf":
		mime = "application/pdf"
	case "jpg", "jpeg":
		mime = "image/jpeg"
	case "png":
		mime = "image/png"
	case "tif", "tiff":
		mime = "image/tiff"
	default:
		logger.Error("unsupported artifact extension", "path", path)
		os.Exit(2)
	}

	artifact, err := os.ReadFile(path)
	if err != nil {
		logger.Error("reading artifact", "path", path, "error", err)
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	extractor := ocr.NewExtractor(ocr.Config{
		Tesseract:     cfg.OCR.Tesseract,
		Pdftoppm:      cfg.OCR.Pdftoppm,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
		PSM:           cfg.OCR.PSM,
		OEM:           cfg.OCR.OEM,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OCR.Timeout)
	defer cancel()

	start := time.Now()
	res, err := extractor.Extract(ctx, artifact, mime)
	if err != nil {
		logger.Error("extraction failed", "path", path, "error", err)
		os.Exit(1)
	}

	fmt.Printf("%-4s %-5s %-6s %-24s %s\n", "PAGE", "SEQ", "CONF", "BBOX(l,t,w,h)", "TEXT")
	for _, tok := range res.Tokens {
		fmt.Printf("%-4d %-5d %-6.2f %-24s %s\n",
			tok.Page+1, tok.Seq, tok.Confidence,
			fmt.Sprintf("%d,%d,%d,%d", tok.BBox.Left, tok.BBox.Top, tok.BBox.Width, tok.BBox.Height),
			tok.Text,
		)
	}

	logger.Info("extraction OK",
		"method", res.Method,
		"pages", res.Pages,
		"tokens", len(res.Tokens),
		"warnings", len(res.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
