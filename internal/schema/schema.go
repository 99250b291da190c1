// Package schema defines the versioned category schema: the closed set
// of invoice fact types the pipeline recognizes, each with a declared
// value type, multiplicity and an ordered validation check list. The
// schema is data, not code: adding a category is a configuration
// change, not new control flow.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

//go:embed default_schema.json
var defaultSchemaJSON []byte

// Check is one validation step descriptor. Name selects a check from
// the validator's registry; Params configure it.
type Check struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Category declares one invoice fact type.
type Category struct {
	ID           fact.CategoryID   `json:"id"`
	Type         fact.ValueType    `json:"type"`
	Multiplicity fact.Multiplicity `json:"multiplicity"`
	Checks       []Check           `json:"checks,omitempty"`

	// Hint is passed to the extraction model as the target description.
	Hint string `json:"hint,omitempty"`

	// Optional per-category threshold overrides. Nil means use the
	// pipeline defaults.
	AcceptConfidence *float32 `json:"accept_confidence,omitempty"`
	RejectCertainty  *float32 `json:"reject_certainty,omitempty"`
}

// Schema is the versioned set of categories. Declaration order is
// significant: it is the stable tie-break for equal-confidence
// candidates.
type Schema struct {
	Version    string     `json:"version"`
	Categories []Category `json:"categories"`

	byID map[fact.CategoryID]Category
}

// Default returns the embedded default schema (the original digest
// shape: invoice number, dates, total, line items).
func Default() (*Schema, error) {
	return parse(defaultSchemaJSON)
}

// Load reads and validates a schema document from path, or returns the
// embedded default when path is empty.
func Load(path string) (*Schema, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category schema: %w", err)
	}
	return parse(b)
}

func parse(b []byte) (*Schema, error) {
	if err := validateDocument(b); err != nil {
		return nil, fmt.Errorf("category schema invalid: %w", err)
	}
	var s Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode category schema: %w", err)
	}
	s.byID = make(map[fact.CategoryID]Category, len(s.Categories))
	for _, c := range s.Categories {
		if _, dup := s.byID[c.ID]; dup {
			return nil, fmt.Errorf("category schema: duplicate id %q", c.ID)
		}
		s.byID[c.ID] = c
	}
	return &s, nil
}

// Category looks up a category by ID.
func (s *Schema) Category(id fact.CategoryID) (Category, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// Order returns category IDs in declaration order.
func (s *Schema) Order() []fact.CategoryID {
	out := make([]fact.CategoryID, len(s.Categories))
	for i, c := range s.Categories {
		out[i] = c.ID
	}
	return out
}

// IDs returns category IDs as plain strings (for prompts and logs).
func (s *Schema) IDs() []string {
	out := make([]string, len(s.Categories))
	for i, c := range s.Categories {
		out[i] = string(c.ID)
	}
	return out
}

// metaSchema constrains schema documents before decoding, so a typo in
// a type or multiplicity fails loudly at startup rather than midway
// through a pipeline run.
const metaSchema = `{
  "type": "object",
  "required": ["version", "categories"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "categories": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "type", "multiplicity"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"enum": ["money", "date", "text", "quantity"]},
          "multiplicity": {"enum": ["single", "multi"]},
          "hint": {"type": "string"},
          "accept_confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "reject_certainty": {"type": "number", "minimum": 0, "maximum": 1},
          "checks": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "params": {"type": "object"}
              }
            }
          }
        }
      }
    }
  }
}`

func validateDocument(doc []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader([]byte(metaSchema))); err != nil {
		return fmt.Errorf("add meta schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile meta schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return compiled.Validate(v)
}
