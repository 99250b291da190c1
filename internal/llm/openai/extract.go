package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/llm"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/synthesize"
)

// ExtractValue implements synthesize.ValueExtractor. The response shape
// is deliberately loose (value may come back as string or number); the
// synthesizer's deterministic normalization absorbs the drift, so no
// re-prompting is needed.
func (c *Client) ExtractValue(ctx context.Context, req synthesize.ExtractValueRequest) (synthesize.RawValue, error) {
	schema := extractSchema(req.TypeHint)
	system := strings.Join([]string{
		"You extract one invoice fact from a span of unformatted OCR text.",
		"Target: " + describeTarget(req),
		"If the span does not contain the target, set found to false.",
		"For amounts return the numeric value only, no currency symbols.",
		"For dates prefer ISO-8601 (YYYY-MM-DD).",
	}, " ")
	user := "Span:\n" + clip(req.Text, 2000)

	content, err := c.chatJSON(ctx, "extract", system, user, schema)
	if err != nil {
		return synthesize.RawValue{}, err
	}

	m, err := llm.DecodeLoose(content)
	if err != nil {
		return synthesize.RawValue{}, err
	}

	var out synthesize.RawValue
	if v, ok := m["found"].(bool); ok {
		out.Found = v
	}
	if s, ok := llm.CoerceToString(m["value"]); ok {
		out.Value = s
	}
	if s, ok := llm.CoerceToString(m["currency"]); ok {
		out.Currency = strings.ToUpper(s)
	}
	if s, ok := llm.CoerceToString(m["unit"]); ok {
		out.Unit = s
	}
	if s, ok := llm.CoerceToString(m["confidence"]); ok {
		if _, err := fmt.Sscanf(s, "%f", &out.Confidence); err != nil {
			out.Confidence = 0
		}
	}
	return out, nil
}

func describeTarget(req synthesize.ExtractValueRequest) string {
	if req.Hint != "" {
		return fmt.Sprintf("%s (%s, a %s value)", req.Hint, req.Category, req.TypeHint)
	}
	return fmt.Sprintf("%s (a %s value)", req.Category, req.TypeHint)
}

func extractSchema(t fact.ValueType) map[string]any {
	props := map[string]any{
		"found":      map[string]any{"type": "boolean"},
		"value":      map[string]any{"type": []string{"string", "number"}},
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}
	switch t {
	case fact.TypeMoney:
		props["currency"] = map[string]any{"type": "string", "minLength": 3, "maxLength": 3}
	case fact.TypeQuantity:
		props["unit"] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"found", "value"},
		"properties":           props,
	}
}
