package synthesize

import (
	"context"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
)

// ValueExtractor is the external extraction collaborator: raw span text
// plus a target type hint in, a loose candidate value out.
type ValueExtractor interface {
	ExtractValue(ctx context.Context, req ExtractValueRequest) (RawValue, error)
}

type ExtractValueRequest struct {
	Text     string
	Category fact.CategoryID
	TypeHint fact.ValueType
	Hint     string // the category's human description from the schema
}

// RawValue is the unnormalized model output. Value is always carried as
// a string regardless of how the model rendered it; the deterministic
// normalization layer owns the conversion to a typed value.
type RawValue struct {
	Found      bool
	Value      string
	Currency   string // money only, ISO 4217 if the model saw one
	Unit       string // quantity only
	Confidence float32
}
