package validate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

// Outcome is one check's verdict. Certainty drives the rejected/flagged
// split: deterministic checks fail with certainty 1.0, model-backed
// checks fail with whatever confidence the model reported.
type Outcome struct {
	OK        bool
	Certainty float32
	Reasons   []string
}

func pass() Outcome { return Outcome{OK: true} }

func fail(certainty float32, format string, args ...any) Outcome {
	return Outcome{OK: false, Certainty: certainty, Reasons: []string{fmt.Sprintf(format, args...)}}
}

// CheckFunc is one registered validation step. Deterministic checks
// ignore ctx; the semantic check uses it for its model call.
type CheckFunc func(ctx context.Context, syn fact.Synthesis, params map[string]any) Outcome

// builtinChecks is the registry the schema's check descriptors resolve
// against. Adding a category needs configuration only; adding a check
// kind means registering here.
func (v *Validator) builtinChecks() map[string]CheckFunc {
	return map[string]CheckFunc{
		"nonempty":     checkNonempty,
		"max_length":   checkMaxLength,
		"valid_date":   checkValidDate,
		"non_negative": checkNonNegative,
		"positive":     checkPositive,
		"semantic":     v.checkSemantic,
	}
}

func checkNonempty(_ context.Context, syn fact.Synthesis, _ map[string]any) Outcome {
	if strings.TrimSpace(syn.Value.String()) == "" {
		return fail(1.0, "value is empty")
	}
	return pass()
}

func checkMaxLength(_ context.Context, syn fact.Synthesis, params map[string]any) Outcome {
	max := paramInt(params, "max", 256)
	if n := utf8.RuneCountInString(syn.Value.Text); n > max {
		return fail(1.0, "text length %d exceeds maximum %d", n, max)
	}
	return pass()
}

func checkValidDate(_ context.Context, syn fact.Synthesis, _ map[string]any) Outcome {
	if syn.Value.Type != fact.TypeDate {
		return fail(1.0, "value is not a date")
	}
	if _, err := time.Parse("2006-01-02", syn.Value.Date); err != nil {
		return fail(1.0, "invalid calendar date %q", syn.Value.Date)
	}
	return pass()
}

func checkNonNegative(_ context.Context, syn fact.Synthesis, params map[string]any) Outcome {
	if syn.Value.Type != fact.TypeMoney || syn.Value.Money == nil {
		return fail(1.0, "value is not an amount")
	}
	f, err := strconv.ParseFloat(syn.Value.Money.Amount, 64)
	if err != nil {
		return fail(1.0, "amount %q is not numeric", syn.Value.Money.Amount)
	}
	if f < 0 && !paramBool(params, "allow_credits", false) {
		return fail(1.0, "negative amount %s in a category that does not allow credits", syn.Value.Money.Amount)
	}
	return pass()
}

func checkPositive(_ context.Context, syn fact.Synthesis, _ map[string]any) Outcome {
	if syn.Value.Type != fact.TypeQuantity || syn.Value.Quantity == nil {
		return fail(1.0, "value is not a quantity")
	}
	if syn.Value.Quantity.Number <= 0 {
		return fail(1.0, "quantity %g is not positive", syn.Value.Quantity.Number)
	}
	return pass()
}

// checkSemantic asks the model collaborator whether the extracted value
// is plausible given its source span. A backend failure flags rather
// than rejects: ambiguity, not certainty.
func (v *Validator) checkSemantic(ctx context.Context, syn fact.Synthesis, params map[string]any) Outcome {
	if v.checker == nil {
		return pass() // semantic checks are optional per deployment
	}
	question := paramString(params, "question", "is this extracted value plausible")
	res, err := v.checker.Check(ctx, CheckRequest{
		Question: question,
		Value:    syn.Value.String(),
		Category: syn.Category,
		Context:  syn.RawSpan.Text(),
	})
	if err != nil {
		return fail(0, "semantic check unavailable: %v", err)
	}
	if !res.Pass {
		return fail(res.Confidence, "semantic check failed: %s", question)
	}
	return pass()
}

func paramInt(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func paramBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}
