// Package synthesize extracts a normalized typed value from a
// categorized snippet: a model-backed extraction layered with
// deterministic per-type normalization.
package synthesize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
)

// SynthesisError records a snippet for which no candidate category
// produced a type-valid value. Non-fatal: the snippet is excluded from
// the digest but kept for audit with full provenance.
type SynthesisError struct {
	Span     string
	StartSeq int
	Tried    []fact.CategoryID
	Reasons  []string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for span %q (tried %d candidates): %s",
		clipSpan(e.Span), len(e.Tried), strings.Join(e.Reasons, "; "))
}

func clipSpan(s string) string {
	r := []rune(s)
	if len(r) > 80 {
		return string(r[:80]) + "…"
	}
	return s
}

type Synthesizer struct {
	schema    *schema.Schema
	extractor ValueExtractor
	logger    *slog.Logger
}

func New(s *schema.Schema, ex ValueExtractor, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{schema: s, extractor: ex, logger: logger}
}

// Synthesize extracts a value of one category's declared type from the
// snippet. It fails when the span's text cannot be coerced into the
// type (no parseable date, no numeric amount, ...).
func (s *Synthesizer) Synthesize(ctx context.Context, snippet fact.Snippet, category fact.CategoryID) (fact.Synthesis, error) {
	cat, ok := s.schema.Category(category)
	if !ok {
		return fact.Synthesis{}, fmt.Errorf("category %q not in active schema", category)
	}

	raw, err := s.extractor.ExtractValue(ctx, ExtractValueRequest{
		Text:     snippet.Text(),
		Category: category,
		TypeHint: cat.Type,
		Hint:     cat.Hint,
	})
	if err != nil {
		return fact.Synthesis{}, fmt.Errorf("extract value: %w", err)
	}
	if !raw.Found {
		return fact.Synthesis{}, fmt.Errorf("no %s found in span", cat.Type)
	}

	value, err := NormalizeValue(cat.Type, raw)
	if err != nil {
		return fact.Synthesis{}, fmt.Errorf("normalize %s: %w", cat.Type, err)
	}

	conf := raw.Confidence
	if conf <= 0 {
		conf = snippet.Candidates[category]
	}
	return fact.Synthesis{
		Category:   category,
		RawSpan:    snippet,
		Value:      value,
		Confidence: conf,
	}, nil
}

// SynthesizeBest tries the snippet's candidates in descending
// categorizer confidence (schema order breaking ties) and keeps the
// first that survives type checking. When none survive it returns a
// SynthesisError naming every attempt.
func (s *Synthesizer) SynthesizeBest(ctx context.Context, snippet fact.Snippet) (fact.Synthesis, error) {
	ranked := snippet.RankedCandidates(s.schema.Order())
	serr := &SynthesisError{Span: snippet.Text(), StartSeq: snippet.StartSeq()}

	for _, category := range ranked {
		syn, err := s.Synthesize(ctx, snippet, category)
		if err == nil {
			return syn, nil
		}
		serr.Tried = append(serr.Tried, category)
		serr.Reasons = append(serr.Reasons, fmt.Sprintf("%s: %v", category, err))
		s.logger.Debug("synthesize.candidate_failed",
			"category", category, "start_seq", snippet.StartSeq(), "error", err)
	}
	return fact.Synthesis{}, serr
}
