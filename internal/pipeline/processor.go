// Package pipeline coordinates the four extraction stages for one
// artifact: tokens, snippets, syntheses, validated digest. Processing
// is invocation-per-artifact with no shared mutable state; parallelism
// lives inside stages (per-window classification, per-snippet
// synthesis+validation), never across them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/assemble"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/categorize"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/extract"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/observability/metrics"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/synthesize"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/validate"
)

// Request is one unit of work. SourceArtifactID is supplied by the
// surrounding ingestion layer, never generated here.
type Request struct {
	SourceArtifactID string
	Artifact         []byte
	MIMEType         string
}

type Processor struct {
	Logger      *slog.Logger
	Extractor   extract.TextExtractor
	Categorizer *categorize.Categorizer
	Synthesizer *synthesize.Synthesizer
	Validator   *validate.Validator
	Assembler   *assemble.Assembler

	// SnippetWorkers bounds concurrent per-snippet synthesis +
	// validation; these are I/O-bound model calls.
	SnippetWorkers int

	Metrics *metrics.Pipeline // optional
}

func NewProcessor(
	logger *slog.Logger,
	ex extract.TextExtractor,
	cat *categorize.Categorizer,
	syn *synthesize.Synthesizer,
	val *validate.Validator,
	asm *assemble.Assembler,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Logger:         logger,
		Extractor:      ex,
		Categorizer:    cat,
		Synthesizer:    syn,
		Validator:      val,
		Assembler:      asm,
		SnippetWorkers: 4,
	}
}

// Process runs the full pipeline for one artifact. Only extraction
// failure is fatal; every downstream per-snippet failure degrades into
// the digest's rejected list with provenance, so a partial digest is
// the expected failure mode.
func (p *Processor) Process(ctx context.Context, req Request) (fact.Digest, error) {
	start := time.Now()

	tokens, err := p.extractStage(ctx, req)
	if err != nil {
		p.Metrics.ObserveArtifact("extraction_error")
		return fact.Digest{}, err
	}

	catStart := time.Now()
	catRes, err := p.Categorizer.Categorize(ctx, tokens)
	if err != nil {
		p.Metrics.ObserveArtifact("categorize_error")
		return fact.Digest{}, fmt.Errorf("categorize artifact %s: %w", req.SourceArtifactID, err)
	}
	p.Metrics.ObserveStage("categorize", time.Since(catStart))

	synStart := time.Now()
	results := p.resolveSnippets(ctx, catRes.Snippets)
	for _, sn := range catRes.Unclassified {
		results = append(results, unclassifiedResult(sn))
	}
	p.Metrics.ObserveStage("synthesize_validate", time.Since(synStart))
	for _, r := range results {
		p.Metrics.ObserveSynthesis(string(r.Status))
	}

	asmStart := time.Now()
	digest := p.Assembler.Assemble(req.SourceArtifactID, results)
	p.Metrics.ObserveStage("assemble", time.Since(asmStart))
	p.Metrics.ObserveArtifact("ok")

	p.Logger.Info("pipeline.ok",
		"artifact_id", req.SourceArtifactID,
		"tokens", len(tokens),
		"snippets", len(catRes.Snippets),
		"unclassified", len(catRes.Unclassified),
		"categories", len(digest.Syntheses),
		"rejected", len(digest.Rejected),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return digest, nil
}

func (p *Processor) extractStage(ctx context.Context, req Request) ([]fact.Token, error) {
	start := time.Now()
	res, err := p.Extractor.Extract(ctx, req.Artifact, req.MIMEType)
	if err != nil {
		p.Logger.Error("pipeline.extract.failed", "artifact_id", req.SourceArtifactID, "err", err)
		return nil, &extract.ExtractionError{
			ArtifactID: req.SourceArtifactID,
			MIMEType:   req.MIMEType,
			Err:        err,
		}
	}
	p.Metrics.ObserveStage("extract", time.Since(start))
	p.Metrics.AddTokens(len(res.Tokens))
	p.Logger.Info("pipeline.extract.ok",
		"artifact_id", req.SourceArtifactID,
		"method", res.Method,
		"pages", res.Pages,
		"tokens", len(res.Tokens),
	)
	return res.Tokens, nil
}

// resolveSnippets synthesizes and validates snippets concurrently under
// the worker bound. Output order does not matter: the assembler
// re-sorts by source position.
func (p *Processor) resolveSnippets(ctx context.Context, snippets []fact.Snippet) []fact.ValidationResult {
	results := make([]fact.ValidationResult, len(snippets))

	workers := p.SnippetWorkers
	if workers <= 0 {
		workers = 4
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, sn := range snippets {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sn fact.Snippet) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.resolveOne(ctx, sn)
		}(i, sn)
	}
	wg.Wait()
	return results
}

func (p *Processor) resolveOne(ctx context.Context, sn fact.Snippet) fact.ValidationResult {
	syn, err := p.Synthesizer.SynthesizeBest(ctx, sn)
	if err != nil {
		var serr *synthesize.SynthesisError
		reasons := []string{err.Error()}
		if errors.As(err, &serr) {
			reasons = serr.Reasons
		}
		// total synthesis failure: category none, kept for audit
		return fact.ValidationResult{
			Synthesis: fact.Synthesis{Category: fact.CategoryNone, RawSpan: sn},
			Status:    fact.StatusRejected,
			Reasons:   reasons,
		}
	}
	return p.Validator.Validate(ctx, syn)
}

func unclassifiedResult(sn fact.Snippet) fact.ValidationResult {
	return fact.ValidationResult{
		Synthesis: fact.Synthesis{Category: fact.CategoryNone, RawSpan: sn},
		Status:    fact.StatusRejected,
		Reasons:   []string{"unclassified: no viable category candidates"},
	}
}
