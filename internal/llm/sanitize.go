// Package llm holds the helpers shared by model-backed collaborators:
// JSON-schema validation of model output and the lenient decoding that
// absorbs the format drift models produce.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes a surrounding markdown code block
// ("```json ... ```") if the model wrapped its JSON in one.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	// drop the opening fence line (``` or ```json)
	lines = lines[1:]
	// drop the closing fence line if present
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// CoerceToString renders a loosely typed JSON scalar as a string.
// Models return "1234.56", 1234.56 or 1234 interchangeably; callers
// normalize from the string form.
func CoerceToString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		// prefer a plain decimal rendering over %e
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", t), "0"), "."), true
	case bool:
		return fmt.Sprintf("%t", t), true
	case nil:
		return "", false
	default:
		return "", false
	}
}

// DecodeLoose unmarshals model JSON with numbers kept as json.Number so
// CoerceToString never loses precision on large amounts.
func DecodeLoose(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model json: %w", err)
	}
	return m, nil
}
