// Package validate applies each category's declared check pipeline to a
// synthesis. Checks are data (schema descriptors resolved against a
// registry), run in declaration order and short-circuit on the first
// failure, so cheap deterministic checks sit before model-backed ones
// by convention.
package validate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
)

// SemanticChecker is the optional model-backed validation collaborator.
type SemanticChecker interface {
	Check(ctx context.Context, req CheckRequest) (CheckResult, error)
}

type CheckRequest struct {
	Question string
	Value    string
	Category fact.CategoryID
	Context  string // the originating span text
}

type CheckResult struct {
	Pass       bool    `json:"pass"`
	Confidence float32 `json:"confidence"`
}

// Config carries the default thresholds; the schema may override them
// per category.
type Config struct {
	AcceptConfidence float32 // syntheses below this are flagged, not accepted; default 0.60
	RejectCertainty  float32 // failures at/above this certainty reject, below flag; default 0.80
}

func (c Config) withDefaults() Config {
	if c.AcceptConfidence <= 0 {
		c.AcceptConfidence = 0.60
	}
	if c.RejectCertainty <= 0 {
		c.RejectCertainty = 0.80
	}
	return c
}

type Validator struct {
	schema  *schema.Schema
	checker SemanticChecker // nil disables semantic checks
	cfg     Config
	checks  map[string]CheckFunc
	logger  *slog.Logger
}

func New(s *schema.Schema, checker SemanticChecker, cfg Config, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Validator{schema: s, checker: checker, cfg: cfg.withDefaults(), logger: logger}
	v.checks = v.builtinChecks()
	return v
}

// Validate runs the synthesis through its category's check pipeline.
// Validation is purely local to one synthesis; cross-field consistency
// belongs to the assembler.
func (v *Validator) Validate(ctx context.Context, syn fact.Synthesis) fact.ValidationResult {
	cat, ok := v.schema.Category(syn.Category)
	if !ok {
		return rejected(syn, fmt.Sprintf("category %q not in active schema", syn.Category))
	}

	// type check precedes all semantic validation
	if syn.Value.Type != cat.Type {
		return rejected(syn, fmt.Sprintf("value type %q does not match declared type %q", syn.Value.Type, cat.Type))
	}

	accept, rejectAt := v.thresholds(cat)

	for _, c := range cat.Checks {
		fn, known := v.checks[c.Name]
		if !known {
			return rejected(syn, fmt.Sprintf("unknown check %q in schema", c.Name))
		}
		out := fn(ctx, syn, c.Params)
		if out.OK {
			continue
		}
		status := fact.StatusFlagged
		if out.Certainty >= rejectAt {
			status = fact.StatusRejected
		}
		v.logger.Debug("validate.check_failed",
			"category", syn.Category, "check", c.Name,
			"certainty", out.Certainty, "status", status,
		)
		return fact.ValidationResult{Synthesis: syn, Status: status, Reasons: out.Reasons}
	}

	if syn.Confidence < accept {
		return fact.ValidationResult{
			Synthesis: syn,
			Status:    fact.StatusFlagged,
			Reasons:   []string{fmt.Sprintf("confidence %.2f below accept threshold %.2f", syn.Confidence, accept)},
		}
	}
	return fact.ValidationResult{Synthesis: syn, Status: fact.StatusAccepted}
}

func (v *Validator) thresholds(cat schema.Category) (accept, rejectAt float32) {
	accept, rejectAt = v.cfg.AcceptConfidence, v.cfg.RejectCertainty
	if cat.AcceptConfidence != nil {
		accept = *cat.AcceptConfidence
	}
	if cat.RejectCertainty != nil {
		rejectAt = *cat.RejectCertainty
	}
	return accept, rejectAt
}

func rejected(syn fact.Synthesis, reason string) fact.ValidationResult {
	return fact.ValidationResult{Synthesis: syn, Status: fact.StatusRejected, Reasons: []string{reason}}
}
