package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/assemble"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/categorize"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/extract"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/synthesize"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/validate"
)

type stubExtractor struct {
	tokens []fact.Token
	err    error
}

func (s *stubExtractor) Extract(context.Context, []byte, string) (extract.TokensResult, error) {
	if s.err != nil {
		return extract.TokensResult{}, s.err
	}
	return extract.TokensResult{Tokens: s.tokens, Pages: 1, Method: "pdf-text"}, nil
}

type stubClassifier struct {
	scores map[string]map[fact.CategoryID]float32
}

func (s *stubClassifier) Classify(_ context.Context, textWindow string, _ []string) (map[fact.CategoryID]float32, error) {
	return s.scores[textWindow], nil
}

type stubValueExtractor struct {
	values map[fact.CategoryID]synthesize.RawValue
}

func (s *stubValueExtractor) ExtractValue(_ context.Context, req synthesize.ExtractValueRequest) (synthesize.RawValue, error) {
	return s.values[req.Category], nil
}

func docLine(page, lineNo, seqStart int, words ...string) []fact.Token {
	tokens := make([]fact.Token, len(words))
	x := 0
	for i, w := range words {
		tokens[i] = fact.Token{
			Page:       page,
			Text:       w,
			Confidence: 0.9,
			Seq:        seqStart + i,
			BBox:       fact.BBox{Left: x, Top: lineNo * 40, Width: 10 * len(w), Height: 20},
		}
		x += 10*len(w) + 5
	}
	return tokens
}

func newTestProcessor(t *testing.T, ex extract.TextExtractor, cl categorize.Classifier, vx synthesize.ValueExtractor) *Processor {
	t.Helper()
	sch, err := schema.Default()
	if err != nil {
		t.Fatalf("loading default schema: %v", err)
	}
	return NewProcessor(
		nil,
		ex,
		categorize.New(sch, cl, categorize.Config{}, nil),
		synthesize.New(sch, vx, nil),
		validate.New(sch, nil, validate.Config{}, nil),
		assemble.New(sch, assemble.Config{}, nil),
	)
}

func TestProcessProducesDigest(t *testing.T) {
	tokens := append(docLine(0, 0, 0, "Invoice", "INV-001"), docLine(0, 1, 2, "Total:", "$100.00")...)
	tokens = append(tokens, docLine(0, 2, 4, "Thank", "you")...)

	ex := &stubExtractor{tokens: tokens}
	cl := &stubClassifier{scores: map[string]map[fact.CategoryID]float32{
		"Invoice INV-001": {"invoice_number": 0.92},
		"Total: $100.00":  {"invoice_total": 0.88},
	}}
	vx := &stubValueExtractor{values: map[fact.CategoryID]synthesize.RawValue{
		"invoice_number": {Found: true, Value: "INV-001", Confidence: 0.92},
		"invoice_total":  {Found: true, Value: "$100.00", Currency: "USD", Confidence: 0.9},
	}}

	p := newTestProcessor(t, ex, cl, vx)
	digest, err := p.Process(context.Background(), Request{SourceArtifactID: "artifact-1", Artifact: []byte("x"), MIMEType: "application/pdf"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if digest.SourceArtifactID != "artifact-1" {
		t.Fatalf("artifact id = %q", digest.SourceArtifactID)
	}
	num, ok := digest.First("invoice_number")
	if !ok || num.Value.Text != "INV-001" {
		t.Fatalf("invoice_number = %+v, ok=%v", num, ok)
	}
	total, ok := digest.First("invoice_total")
	if !ok || total.Value.Money == nil || total.Value.Money.Amount != "100.00" {
		t.Fatalf("invoice_total = %+v, ok=%v", total, ok)
	}

	// The unclassified trailing span lands in Rejected for audit.
	found := false
	for _, r := range digest.Rejected {
		if r.Synthesis.Category == fact.CategoryNone && strings.Contains(strings.Join(r.Reasons, " "), "unclassified") {
			found = true
		}
	}
	if !found {
		t.Fatalf("rejected = %+v, want an unclassified audit entry", digest.Rejected)
	}
}

func TestProcessExtractionFailureIsFatal(t *testing.T) {
	ex := &stubExtractor{err: errors.New("tesseract not found")}
	p := newTestProcessor(t, ex, &stubClassifier{}, &stubValueExtractor{})

	_, err := p.Process(context.Background(), Request{SourceArtifactID: "artifact-2", MIMEType: "image/png"})
	var xerr *extract.ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("err = %v, want *extract.ExtractionError", err)
	}
	if xerr.ArtifactID != "artifact-2" {
		t.Fatalf("error names artifact %q, want artifact-2", xerr.ArtifactID)
	}
}

func TestProcessSynthesisFailureDegrades(t *testing.T) {
	tokens := docLine(0, 0, 0, "Due", "someday")
	ex := &stubExtractor{tokens: tokens}
	cl := &stubClassifier{scores: map[string]map[fact.CategoryID]float32{
		"Due someday": {"due_date": 0.8},
	}}
	// The model finds no date, so every candidate fails synthesis.
	vx := &stubValueExtractor{values: map[fact.CategoryID]synthesize.RawValue{
		"due_date": {Found: false},
	}}

	p := newTestProcessor(t, ex, cl, vx)
	digest, err := p.Process(context.Background(), Request{SourceArtifactID: "artifact-3", Artifact: []byte("x"), MIMEType: "application/pdf"})
	if err != nil {
		t.Fatalf("synthesis failure must not fail the artifact: %v", err)
	}
	if len(digest.Syntheses) != 0 {
		t.Fatalf("syntheses = %+v, want none", digest.Syntheses)
	}
	if len(digest.Rejected) != 1 {
		t.Fatalf("rejected = %d, want 1", len(digest.Rejected))
	}
	r := digest.Rejected[0]
	if r.Synthesis.Category != fact.CategoryNone || r.Status != fact.StatusRejected {
		t.Fatalf("rejected entry = %+v", r)
	}
	if r.Synthesis.RawSpan.Text() != "Due someday" {
		t.Fatalf("provenance span = %q", r.Synthesis.RawSpan.Text())
	}
}

func TestProcessFlaggedResultsStayOutOfSyntheses(t *testing.T) {
	tokens := docLine(0, 0, 0, "Total:", "$100.00")
	ex := &stubExtractor{tokens: tokens}
	cl := &stubClassifier{scores: map[string]map[fact.CategoryID]float32{
		"Total: $100.00": {"invoice_total": 0.5},
	}}
	// Confidence below the accept threshold: flagged, not accepted.
	vx := &stubValueExtractor{values: map[fact.CategoryID]synthesize.RawValue{
		"invoice_total": {Found: true, Value: "100.00", Confidence: 0.4},
	}}

	p := newTestProcessor(t, ex, cl, vx)
	digest, err := p.Process(context.Background(), Request{SourceArtifactID: "artifact-4", Artifact: []byte("x"), MIMEType: "application/pdf"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, ok := digest.First("invoice_total"); ok {
		t.Fatal("flagged synthesis appeared among accepted facts")
	}
	if len(digest.Rejected) != 1 || digest.Rejected[0].Status != fact.StatusFlagged {
		t.Fatalf("rejected = %+v, want one flagged entry", digest.Rejected)
	}
}
