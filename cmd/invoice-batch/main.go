package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/constants"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/assemble"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/categorize"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/common"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/export"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/extract"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/llm/openai"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/ocr"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/pipeline"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/resilience"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/synthesize"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/validate"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir    = flag.String("dir", "", "directory of invoice artifacts to process (required)")
		out    = flag.String("out", "", "output file path (default: <dir>/../facts.<format>)")
		format = flag.String("format", "xlsx", "output format: json, csv or xlsx")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	switch *format {
	case "json", "csv", "xlsx":
	default:
		printError("Error: --format must be json, csv or xlsx\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "facts."+*format)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	cfg := common.LoadConfig()
	if cfg.LLM.APIKey == "" {
		printError("Error: OPENAI_API_KEY is required\n")
		os.Exit(1)
	}

	ctx := context.Background()

	sch, err := schema.Load(cfg.Pipeline.SchemaPath)
	if err != nil {
		logger.Error("loading category schema", "error", err)
		os.Exit(1)
	}

	client := openai.NewClient(openai.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		Timeout:        cfg.LLM.Timeout,
		RequestsPerSec: cfg.LLM.RequestsPerSec,
		Resilience: resilience.Config{
			RetryMaxAttempts:    cfg.LLM.RetryMaxAttempts,
			RetryInitialBackoff: cfg.LLM.RetryBackoff,
		},
	}, logger)

	extractor := extract.NewOCRAdapter(ocr.NewExtractor(ocr.Config{
		Tesseract:     cfg.OCR.Tesseract,
		Pdftoppm:      cfg.OCR.Pdftoppm,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
	}, logger), logger)

	processor := pipeline.NewProcessor(
		logger,
		extractor,
		categorize.New(sch, client, categorize.Config{
			MinCandidateConfidence: cfg.Pipeline.MinCandidateConf,
			MaxWindowTokens:        cfg.Pipeline.WindowMaxTokens,
		}, logger),
		synthesize.New(sch, client, logger),
		validate.New(sch, client, validate.Config{
			AcceptConfidence: cfg.Pipeline.AcceptConfidence,
			RejectCertainty:  cfg.Pipeline.RejectCertainty,
		}, logger),
		assemble.New(sch, assemble.Config{
			TolerancePct: cfg.Pipeline.ReconcileTolerancePct,
		}, logger),
	)
	processor.SnippetWorkers = cfg.Pipeline.SnippetWorkers

	// Collect artifacts
	var paths []string
	err = filepath.WalkDir(*dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != *dir {
				return filepath.SkipDir
			}
			return nil
		}
		if constants.MapExtToFormat(filepath.Ext(path)) != "" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		logger.Error("scanning directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	logger.Info("starting batch", "dir", *dir, "artifacts", len(paths))

	var digests []fact.Digest
	failures := 0
	for _, path := range paths {
		artifact, err := os.ReadFile(path)
		if err != nil {
			logger.Error("reading artifact", "path", path, "error", err)
			failures++
			continue
		}
		digest, err := processor.Process(ctx, pipeline.Request{
			SourceArtifactID: uuid.NewString(),
			Artifact:         artifact,
			MIMEType:         mimeForExt(filepath.Ext(path)),
		})
		if err != nil {
			logger.Error("processing artifact", "path", path, "error", err)
			failures++
			continue
		}
		digests = append(digests, digest)
	}

	svc := export.NewService(sch, logger)
	f, err := os.Create(*out)
	if err != nil {
		logger.Error("creating output file", "path", *out, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	switch *format {
	case "json":
		err = svc.WriteJSON(f, digests)
	case "csv":
		err = svc.WriteCSV(f, digests)
	case "xlsx":
		var b []byte
		b, err = svc.XLSXBytes(digests)
		if err == nil {
			_, err = f.Write(b)
		}
	}
	if err != nil {
		logger.Error("writing output", "path", *out, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Batch complete!\n")
	fmt.Printf("- Artifacts processed: %d\n", len(digests))
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
}

func mimeForExt(ext string) string {
	switch constants.NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
