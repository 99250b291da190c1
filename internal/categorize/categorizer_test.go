package categorize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
)

// scriptedClassifier returns canned scores keyed by window text.
type scriptedClassifier struct {
	mu      sync.Mutex
	scores  map[string]map[fact.CategoryID]float32
	failOn  string
	windows []string
}

func (s *scriptedClassifier) Classify(_ context.Context, textWindow string, _ []string) (map[fact.CategoryID]float32, error) {
	s.mu.Lock()
	s.windows = append(s.windows, textWindow)
	s.mu.Unlock()
	if s.failOn != "" && strings.Contains(textWindow, s.failOn) {
		return nil, errors.New("classification unavailable")
	}
	return s.scores[textWindow], nil
}

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Default()
	if err != nil {
		t.Fatalf("loading default schema: %v", err)
	}
	return s
}

// line lays words out left to right on one text line of the given page.
func line(page, lineNo, seqStart int, words ...string) []fact.Token {
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

func allTokens(partition Result) int {
	n := 0
	for _, s := range partition.Snippets {
		n += len(s.Tokens)
	}
	for _, s := range partition.Unclassified {
		n += len(s.Tokens)
	}
	return n
}

func TestCategorizePartitionsEveryToken(t *testing.T) {
	tokens := append(line(0, 0, 0, "Invoice", "INV-001"), line(0, 1, 2, "Total:", "$99.00")...)
	cl := &scriptedClassifier{scores: map[string]map[fact.CategoryID]float32{
		"Invoice INV-001": {"invoice_number": 0.9},
		"Total: $99.00":   {"invoice_total": 0.8},
	}}
	c := New(mustSchema(t), cl, Config{}, nil)

	res, err := c.Categorize(context.Background(), tokens)
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if got := allTokens(res); got != len(tokens) {
		t.Fatalf("partition covers %d tokens, want %d", got, len(tokens))
	}
	if len(res.Snippets) != 2 {
		t.Fatalf("snippets = %d, want 2", len(res.Snippets))
	}
}

func TestCategorizeThresholdDiscardsWeakAndUnknown(t *testing.T) {
	tokens := line(0, 0, 0, "Thank", "you")
	cl := &scriptedClassifier{scores: map[string]map[fact.CategoryID]float32{
		"Thank you": {
			"invoice_number": 0.05, // below threshold
			"made_up":        0.99, // not in schema
		},
	}}
	c := New(mustSchema(t), cl, Config{MinCandidateConfidence: 0.30}, nil)

	res, err := c.Categorize(context.Background(), tokens)
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if len(res.Snippets) != 0 {
		t.Fatalf("snippets = %v, want none", res.Snippets)
	}
	if len(res.Unclassified) != 1 || !res.Unclassified[0].Unclassified() {
		t.Fatalf("unclassified = %v, want the whole span", res.Unclassified)
	}
}

func TestCategorizeMergesAgreeingWindows(t *testing.T) {
	// One long line split into two windows by the token cap; both
	// windows agree the span is a description, so they merge.
	tokens := line(0, 0, 0, "Cloud", "hosting", "services", "March")
	cl := &scriptedClassifier{scores: map[string]map[fact.CategoryID]float32{
		"Cloud hosting":  {"line_item_description": 0.7},
		"services March": {"line_item_description": 0.85},
	}}
	c := New(mustSchema(t), cl, Config{MaxWindowTokens: 2}, nil)

	res, err := c.Categorize(context.Background(), tokens)
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if len(res.Snippets) != 1 {
		t.Fatalf("snippets = %d, want 1 merged span", len(res.Snippets))
	}
	sn := res.Snippets[0]
	if len(sn.Tokens) != 4 {
		t.Fatalf("merged span has %d tokens, want 4", len(sn.Tokens))
	}
	if sn.Candidates["line_item_description"] != 0.85 {
		t.Fatalf("merged confidence = %v, want the max 0.85", sn.Candidates["line_item_description"])
	}
}

func TestCategorizeDoesNotMergeDisagreeingWindows(t *testing.T) {
	tokens := line(0, 0, 0, "INV-001", "X", "2024-03-15", "Y")
	cl := &scriptedClassifier{scores: map[string]map[fact.CategoryID]float32{
		"INV-001 X":    {"invoice_number": 0.9},
		"2024-03-15 Y": {"invoice_date": 0.9},
	}}
	c := New(mustSchema(t), cl, Config{MaxWindowTokens: 2}, nil)

	res, err := c.Categorize(context.Background(), tokens)
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if len(res.Snippets) != 2 {
		t.Fatalf("snippets = %d, want 2 distinct spans", len(res.Snippets))
	}
}

func TestCategorizeWindowsNeverSpanLines(t *testing.T) {
	tokens := append(line(0, 0, 0, "Total:"), line(0, 1, 1, "$99.00")...)
	cl := &scriptedClassifier{scores: map[string]map[fact.CategoryID]float32{}}
	c := New(mustSchema(t), cl, Config{}, nil)

	if _, err := c.Categorize(context.Background(), tokens); err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	for _, w := range cl.windows {
		if strings.Contains(w, "Total:") && strings.Contains(w, "$99.00") {
			t.Fatalf("window %q spans two lines", w)
		}
	}
}

func TestCategorizeFailedWindowStaysUnclassified(t *testing.T) {
	tokens := append(line(0, 0, 0, "Invoice", "INV-001"), line(0, 1, 2, "Total:", "$99.00")...)
	cl := &scriptedClassifier{
		scores: map[string]map[fact.CategoryID]float32{
			"Invoice INV-001": {"invoice_number": 0.9},
		},
		failOn: "Total:",
	}
	c := New(mustSchema(t), cl, Config{}, nil)

	res, err := c.Categorize(context.Background(), tokens)
	if err != nil {
		t.Fatalf("Categorize must not fail the artifact: %v", err)
	}
	if len(res.Snippets) != 1 {
		t.Fatalf("snippets = %d, want the surviving window only", len(res.Snippets))
	}
	if len(res.Unclassified) != 1 {
		t.Fatalf("unclassified = %d, want the failed window", len(res.Unclassified))
	}
	if got := allTokens(res); got != len(tokens) {
		t.Fatalf("partition covers %d tokens, want %d", got, len(tokens))
	}
}

func TestCategorizeEmptyInput(t *testing.T) {
	c := New(mustSchema(t), &scriptedClassifier{}, Config{}, nil)
	res, err := c.Categorize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if len(res.Snippets) != 0 || len(res.Unclassified) != 0 {
		t.Fatalf("unexpected result for empty input: %+v", res)
	}
}
