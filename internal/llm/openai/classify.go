package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

// Classify implements categorize.Classifier: it scores a text window
// against every category of the active schema. Scores are opaque to the
// categorizer beyond thresholding.
func (c *Client) Classify(ctx context.Context, textWindow string, categories []string) (map[fact.CategoryID]float32, error) {
	schema := classifySchema(categories)
	system := strings.Join([]string{
		"You classify short spans of invoice text into invoice fact categories.",
		"Score every category between 0 and 1 for how likely the span contains that fact.",
		"Use 0 for categories that clearly do not apply.",
	}, " ")
	user := fmt.Sprintf("Categories: %s\n\nSpan:\n%s", strings.Join(categories, ", "), clip(textWindow, 2000))

	content, err := c.chatJSON(ctx, "classify", system, user, schema)
	if err != nil {
		return nil, err
	}

	var scores map[string]float32
	if err := json.Unmarshal(content, &scores); err != nil {
		return nil, fmt.Errorf("unmarshal classification: %w", err)
	}
	out := make(map[fact.CategoryID]float32, len(scores))
	for k, v := range scores {
		out[fact.CategoryID(k)] = v
	}
	return out, nil
}

func classifySchema(categories []string) map[string]any {
	props := make(map[string]any, len(categories))
	for _, id := range categories {
		props[id] = map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
