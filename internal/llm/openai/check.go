package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/validate"
)

// Check implements validate.SemanticChecker: a model-backed plausibility
// check for categories where deterministic rules are insufficient.
func (c *Client) Check(ctx context.Context, req validate.CheckRequest) (validate.CheckResult, error) {
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"pass", "confidence"},
		"properties": map[string]any{
			"pass":       map[string]any{"type": "boolean"},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
	}
	system := strings.Join([]string{
		"You verify a single extracted invoice fact against its source text.",
		"Answer whether the extracted value is plausible, with a confidence score.",
	}, " ")
	user := fmt.Sprintf("Question: %s\nCategory: %s\nExtracted value: %s\nSource span:\n%s",
		req.Question, req.Category, req.Value, clip(req.Context, 2000))

	content, err := c.chatJSON(ctx, "check", system, user, schema)
	if err != nil {
		return validate.CheckResult{}, err
	}

	var out validate.CheckResult
	if err := json.Unmarshal(content, &out); err != nil {
		return validate.CheckResult{}, fmt.Errorf("unmarshal check result: %w", err)
	}
	return out, nil
}
