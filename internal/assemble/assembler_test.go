package assemble

import (
	"strings"
	"testing"
	"time"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
)

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Default()
	if err != nil {
		t.Fatalf("loading default schema: %v", err)
	}
	return s
}

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	a := New(mustSchema(t), Config{}, nil)
	a.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func accepted(category fact.CategoryID, startSeq int, value fact.Value, conf float32) fact.ValidationResult {
	return fact.ValidationResult{
		Synthesis: fact.Synthesis{
			Category:   category,
			RawSpan:    fact.Snippet{Tokens: []fact.Token{{Text: "x", Seq: startSeq}}},
			Value:      value,
			Confidence: conf,
		},
		Status: fact.StatusAccepted,
	}
}

func money(amount string) fact.Value {
	return fact.Value{Type: fact.TypeMoney, Money: &fact.Money{Amount: amount}}
}

func text(s string) fact.Value {
	return fact.Value{Type: fact.TypeText, Text: s}
}

func TestAssembleGroupsByCategoryInTokenOrder(t *testing.T) {
	a := newTestAssembler(t)
	// Completion order is scrambled relative to source positions.
	results := []fact.ValidationResult{
		accepted("line_item_description", 30, text("third"), 0.9),
		accepted("line_item_description", 10, text("first"), 0.9),
		accepted("line_item_description", 20, text("second"), 0.9),
	}
	d := a.Assemble("artifact-1", results)

	got := d.Accepted("line_item_description")
	if len(got) != 3 {
		t.Fatalf("accepted count = %d, want 3", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Value.Text != want {
			t.Errorf("position %d = %q, want %q", i, got[i].Value.Text, want)
		}
	}
}

func TestAssembleSingleValuedSupersedes(t *testing.T) {
	a := newTestAssembler(t)
	results := []fact.ValidationResult{
		accepted("invoice_number", 5, text("INV-001"), 0.70),
		accepted("invoice_number", 50, text("INV-002"), 0.95),
	}
	d := a.Assemble("artifact-1", results)

	winner, ok := d.First("invoice_number")
	if !ok {
		t.Fatal("no invoice_number in digest")
	}
	if winner.Value.Text != "INV-002" {
		t.Fatalf("winner = %q, want the higher-confidence INV-002", winner.Value.Text)
	}
	if len(d.Rejected) != 1 {
		t.Fatalf("rejected = %d, want 1 superseded entry", len(d.Rejected))
	}
	loser := d.Rejected[0]
	if loser.Synthesis.Value.Text != "INV-001" || loser.Status != fact.StatusRejected {
		t.Fatalf("superseded entry = %+v", loser)
	}
	if len(loser.Reasons) != 1 || !strings.Contains(loser.Reasons[0], "superseded") {
		t.Fatalf("reasons = %v, want a superseded reason", loser.Reasons)
	}
}

func TestAssembleSupersedeTieBreaksEarlier(t *testing.T) {
	a := newTestAssembler(t)
	results := []fact.ValidationResult{
		accepted("invoice_number", 40, text("LATER"), 0.9),
		accepted("invoice_number", 4, text("EARLIER"), 0.9),
	}
	d := a.Assemble("artifact-1", results)

	winner, _ := d.First("invoice_number")
	if winner.Value.Text != "EARLIER" {
		t.Fatalf("winner = %q, want the earlier span on equal confidence", winner.Value.Text)
	}
}

func TestAssembleReconcileWithinTolerance(t *testing.T) {
	a := newTestAssembler(t)
	results := []fact.ValidationResult{
		accepted("invoice_total", 90, money("100.00"), 0.9),
		accepted("line_item_amount", 10, money("60.00"), 0.9),
		accepted("line_item_amount", 20, money("39.99"), 0.9),
	}
	d := a.Assemble("artifact-1", results)

	if _, ok := d.First("invoice_total"); !ok {
		t.Fatal("total dropped despite being within tolerance")
	}
	if len(d.Rejected) != 0 {
		t.Fatalf("rejected = %v, want none", d.Rejected)
	}
}

func TestAssembleReconcileFlagsInconsistentTotal(t *testing.T) {
	a := newTestAssembler(t)
	results := []fact.ValidationResult{
		accepted("invoice_total", 90, money("150.00"), 0.9),
		accepted("line_item_amount", 10, money("60.00"), 0.9),
		accepted("line_item_amount", 20, money("40.00"), 0.9),
	}
	d := a.Assemble("artifact-1", results)

	if _, ok := d.First("invoice_total"); ok {
		t.Fatal("inconsistent total still in accepted syntheses")
	}
	if len(d.Rejected) != 1 {
		t.Fatalf("rejected = %d, want 1", len(d.Rejected))
	}
	fl := d.Rejected[0]
	if fl.Status != fact.StatusFlagged {
		t.Fatalf("status = %s, want flagged", fl.Status)
	}
	if !strings.Contains(fl.Reasons[0], "100.00") || !strings.Contains(fl.Reasons[0], "150.00") {
		t.Fatalf("reason %q does not spell out the arithmetic", fl.Reasons[0])
	}
	// Line items stay accepted: only the total is in question.
	if len(d.Accepted("line_item_amount")) != 2 {
		t.Fatal("line items dropped during reconciliation")
	}
}

func TestAssembleReconcileSkipsWithoutLines(t *testing.T) {
	a := newTestAssembler(t)
	d := a.Assemble("artifact-1", []fact.ValidationResult{
		accepted("invoice_total", 90, money("150.00"), 0.9),
	})
	if _, ok := d.First("invoice_total"); !ok {
		t.Fatal("total dropped with no line items to reconcile against")
	}
}

func TestAssembleRejectedOrderedBySourcePosition(t *testing.T) {
	a := newTestAssembler(t)
	reject := func(startSeq int) fact.ValidationResult {
		r := accepted("line_item_description", startSeq, text("x"), 0.9)
		r.Status = fact.StatusRejected
		r.Reasons = []string{"bad"}
		return r
	}
	d := a.Assemble("artifact-1", []fact.ValidationResult{reject(30), reject(10), reject(20)})

	if len(d.Rejected) != 3 {
		t.Fatalf("rejected = %d", len(d.Rejected))
	}
	for i, want := range []int{10, 20, 30} {
		if got := d.Rejected[i].Synthesis.RawSpan.StartSeq(); got != want {
			t.Errorf("rejected[%d] starts at %d, want %d", i, got, want)
		}
	}
}

func TestAssembleDeterministic(t *testing.T) {
	a := newTestAssembler(t)
	results := []fact.ValidationResult{
		accepted("invoice_number", 5, text("INV-001"), 0.70),
		accepted("invoice_number", 50, text("INV-002"), 0.95),
		accepted("line_item_amount", 10, money("60.00"), 0.9),
		accepted("invoice_total", 90, money("60.00"), 0.9),
	}
	first := a.Assemble("artifact-1", results)
	second := a.Assemble("artifact-1", results)

	if len(first.Rejected) != len(second.Rejected) {
		t.Fatal("rejected lists differ between runs")
	}
	w1, _ := first.First("invoice_number")
	w2, _ := second.First("invoice_number")
	if w1.Value.Text != w2.Value.Text {
		t.Fatal("winners differ between runs")
	}
}
