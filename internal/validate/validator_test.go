package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
)

type fakeChecker struct {
	result CheckResult
	err    error
	calls  int
	lastQ  string
}

func (f *fakeChecker) Check(_ context.Context, req CheckRequest) (CheckResult, error) {
	f.calls++
	f.lastQ = req.Question
	if f.err != nil {
		return CheckResult{}, f.err
	}
	return f.result, nil
}

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Default()
	if err != nil {
		t.Fatalf("loading default schema: %v", err)
	}
	return s
}

func moneySynthesis(category fact.CategoryID, amount string, conf float32) fact.Synthesis {
	return fact.Synthesis{
		Category: category,
		RawSpan: fact.Snippet{Tokens: []fact.Token{
			{Text: "Total:", Seq: 10},
			{Text: amount, Seq: 11},
		}},
		Value:      fact.Value{Type: fact.TypeMoney, Money: &fact.Money{Amount: amount}},
		Confidence: conf,
	}
}

func textSynthesis(category fact.CategoryID, text string, conf float32) fact.Synthesis {
	return fact.Synthesis{
		Category:   category,
		Value:      fact.Value{Type: fact.TypeText, Text: text},
		Confidence: conf,
	}
}

func TestValidateAccepts(t *testing.T) {
	v := New(mustSchema(t), nil, Config{}, nil)
	res := v.Validate(context.Background(), moneySynthesis("invoice_total", "1234.56", 0.9))
	if res.Status != fact.StatusAccepted {
		t.Fatalf("status = %s (%v), want accepted", res.Status, res.Reasons)
	}
	if len(res.Reasons) != 0 {
		t.Fatalf("accepted result carries reasons: %v", res.Reasons)
	}
}

func TestValidateLowConfidenceFlags(t *testing.T) {
	v := New(mustSchema(t), nil, Config{AcceptConfidence: 0.60}, nil)
	res := v.Validate(context.Background(), moneySynthesis("invoice_total", "1234.56", 0.45))
	if res.Status != fact.StatusFlagged {
		t.Fatalf("status = %s, want flagged", res.Status)
	}
	if len(res.Reasons) == 0 {
		t.Fatal("flagged result must carry a reason")
	}
}

func TestValidateDeterministicFailureRejects(t *testing.T) {
	// Deterministic checks fail with certainty 1.0, above any
	// reasonable reject threshold.
	v := New(mustSchema(t), nil, Config{}, nil)
	res := v.Validate(context.Background(), moneySynthesis("invoice_total", "-10.00", 0.95))
	if res.Status != fact.StatusRejected {
		t.Fatalf("status = %s, want rejected", res.Status)
	}
}

func TestValidateCreditAllowedForLineAmounts(t *testing.T) {
	v := New(mustSchema(t), nil, Config{}, nil)
	res := v.Validate(context.Background(), moneySynthesis("line_item_amount", "-10.00", 0.95))
	if res.Status != fact.StatusAccepted {
		t.Fatalf("status = %s (%v), want accepted credit line", res.Status, res.Reasons)
	}
}

func TestValidateTypeMismatchRejects(t *testing.T) {
	v := New(mustSchema(t), nil, Config{}, nil)
	syn := fact.Synthesis{
		Category:   "invoice_total",
		Value:      fact.Value{Type: fact.TypeText, Text: "99.00"},
		Confidence: 0.95,
	}
	res := v.Validate(context.Background(), syn)
	if res.Status != fact.StatusRejected {
		t.Fatalf("status = %s, want rejected on type mismatch", res.Status)
	}
}

func TestValidateUnknownCategoryRejects(t *testing.T) {
	v := New(mustSchema(t), nil, Config{}, nil)
	res := v.Validate(context.Background(), textSynthesis("no_such_category", "x", 0.9))
	if res.Status != fact.StatusRejected {
		t.Fatalf("status = %s, want rejected", res.Status)
	}
}

func TestValidateChecksShortCircuit(t *testing.T) {
	// due_date declares valid_date before its semantic check; an
	// invalid date must never reach the model collaborator.
	checker := &fakeChecker{result: CheckResult{Pass: true, Confidence: 1}}
	v := New(mustSchema(t), checker, Config{}, nil)

	syn := fact.Synthesis{
		Category:   "due_date",
		Value:      fact.Value{Type: fact.TypeDate, Date: "not-a-date"},
		Confidence: 0.95,
	}
	res := v.Validate(context.Background(), syn)
	if res.Status != fact.StatusRejected {
		t.Fatalf("status = %s, want rejected", res.Status)
	}
	if checker.calls != 0 {
		t.Fatalf("semantic checker called %d times after earlier check failed", checker.calls)
	}
	if len(res.Reasons) != 1 {
		t.Fatalf("reasons = %v, want exactly the first failing check's reason", res.Reasons)
	}
}

func TestValidateSemanticFailureSplitsOnCertainty(t *testing.T) {
	syn := fact.Synthesis{
		Category:   "due_date",
		Value:      fact.Value{Type: fact.TypeDate, Date: "2024-03-15"},
		Confidence: 0.95,
	}

	highCertainty := &fakeChecker{result: CheckResult{Pass: false, Confidence: 0.95}}
	v := New(mustSchema(t), highCertainty, Config{RejectCertainty: 0.80}, nil)
	if res := v.Validate(context.Background(), syn); res.Status != fact.StatusRejected {
		t.Fatalf("high-certainty failure: status = %s, want rejected", res.Status)
	}

	lowCertainty := &fakeChecker{result: CheckResult{Pass: false, Confidence: 0.40}}
	v = New(mustSchema(t), lowCertainty, Config{RejectCertainty: 0.80}, nil)
	if res := v.Validate(context.Background(), syn); res.Status != fact.StatusFlagged {
		t.Fatalf("low-certainty failure: status = %s, want flagged", res.Status)
	}
}

func TestValidateSemanticBackendErrorFlags(t *testing.T) {
	checker := &fakeChecker{err: errors.New("backend down")}
	v := New(mustSchema(t), checker, Config{}, nil)

	syn := fact.Synthesis{
		Category:   "due_date",
		Value:      fact.Value{Type: fact.TypeDate, Date: "2024-03-15"},
		Confidence: 0.95,
	}
	res := v.Validate(context.Background(), syn)
	if res.Status != fact.StatusFlagged {
		t.Fatalf("status = %s, want flagged when semantic backend is unavailable", res.Status)
	}
}

func TestValidateNilCheckerSkipsSemantic(t *testing.T) {
	v := New(mustSchema(t), nil, Config{}, nil)
	syn := fact.Synthesis{
		Category:   "due_date",
		Value:      fact.Value{Type: fact.TypeDate, Date: "2024-03-15"},
		Confidence: 0.95,
	}
	if res := v.Validate(context.Background(), syn); res.Status != fact.StatusAccepted {
		t.Fatalf("status = %s (%v), want accepted with semantic checks disabled", res.Status, res.Reasons)
	}
}

func TestValidateMaxLength(t *testing.T) {
	v := New(mustSchema(t), nil, Config{}, nil)
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	res := v.Validate(context.Background(), textSynthesis("line_item_description", string(long), 0.9))
	if res.Status != fact.StatusRejected {
		t.Fatalf("status = %s, want rejected for over-long description", res.Status)
	}
}
