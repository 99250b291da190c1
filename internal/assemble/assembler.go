// Package assemble builds the final digest from per-synthesis
// validation results: multiplicity resolution, token-order restoration
// and the cross-field consistency pass.
package assemble

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
)

// Config holds the cross-field reconciliation knobs.
type Config struct {
	// TolerancePct is the allowed relative gap between the sum of line
	// item amounts and the invoice total, in percent. The absolute
	// floor is one cent either way.
	TolerancePct float64

	// Category IDs participating in reconciliation. Defaults match the
	// embedded schema.
	TotalCategory      fact.CategoryID
	LineAmountCategory fact.CategoryID
}

func (c Config) withDefaults() Config {
	if c.TolerancePct <= 0 {
		c.TolerancePct = 0.5
	}
	if c.TotalCategory == "" {
		c.TotalCategory = "invoice_total"
	}
	if c.LineAmountCategory == "" {
		c.LineAmountCategory = "line_item_amount"
	}
	return c
}

type Assembler struct {
	schema *schema.Schema
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(s *schema.Schema, cfg Config, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{schema: s, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// Assemble groups accepted results by category under the schema's
// multiplicity rules and runs the cross-field pass. Snippet completion
// order is irrelevant: everything is re-sorted by source token
// position, so re-running on identical inputs yields identical digests.
func (a *Assembler) Assemble(sourceArtifactID string, results []fact.ValidationResult) fact.Digest {
	d := fact.Digest{
		SourceArtifactID: sourceArtifactID,
		Syntheses:        make(map[fact.CategoryID][]fact.Synthesis),
		CreatedAt:        a.now().UTC(),
	}

	// stable source order first, so every later decision ties break the
	// same way on every run
	sorted := append([]fact.ValidationResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].Synthesis.RawSpan.StartSeq(), sorted[j].Synthesis.RawSpan.StartSeq()
		if si != sj {
			return si < sj
		}
		return sorted[i].Synthesis.Category < sorted[j].Synthesis.Category
	})

	accepted := make(map[fact.CategoryID][]fact.Synthesis)
	for _, r := range sorted {
		if r.Status == fact.StatusAccepted {
			accepted[r.Synthesis.Category] = append(accepted[r.Synthesis.Category], r.Synthesis)
			continue
		}
		d.Rejected = append(d.Rejected, r)
	}

	for id, ss := range accepted {
		cat, ok := a.schema.Category(id)
		if ok && cat.Multiplicity == fact.SingleValued && len(ss) > 1 {
			winner := pickWinner(ss)
			for _, s := range ss {
				if s.RawSpan.StartSeq() == winner.RawSpan.StartSeq() {
					continue
				}
				d.Rejected = append(d.Rejected, fact.ValidationResult{
					Synthesis: s,
					Status:    fact.StatusRejected,
					Reasons:   []string{fmt.Sprintf("superseded by higher-confidence %s synthesis", id)},
				})
			}
			ss = []fact.Synthesis{winner}
		}
		d.Syntheses[id] = ss
	}

	a.reconcile(&d)

	sort.SliceStable(d.Rejected, func(i, j int) bool {
		si, sj := d.Rejected[i].Synthesis.RawSpan.StartSeq(), d.Rejected[j].Synthesis.RawSpan.StartSeq()
		if si != sj {
			return si < sj
		}
		return d.Rejected[i].Synthesis.Category < d.Rejected[j].Synthesis.Category
	})

	a.logger.Info("assemble.ok",
		"artifact_id", sourceArtifactID,
		"categories", len(d.Syntheses),
		"rejected", len(d.Rejected),
	)
	return d
}

// pickWinner keeps the highest-confidence synthesis; equal confidences
// break toward the earlier source position.
func pickWinner(ss []fact.Synthesis) fact.Synthesis {
	winner := ss[0]
	for _, s := range ss[1:] {
		if s.Confidence > winner.Confidence {
			winner = s
		}
	}
	return winner
}

// reconcile checks that the line item amounts sum to the invoice total
// within tolerance. An inconsistent total is downgraded from accepted
// to flagged and moved to the rejected list with the arithmetic spelled
// out. History is never mutated, the accepted entry just moves.
func (a *Assembler) reconcile(d *fact.Digest) {
	total, ok := singleAmount(d, a.cfg.TotalCategory)
	if !ok {
		return
	}
	lines := d.Syntheses[a.cfg.LineAmountCategory]
	if len(lines) == 0 {
		return
	}

	var sum float64
	for _, s := range lines {
		if s.Value.Money == nil {
			return
		}
		f, err := strconv.ParseFloat(s.Value.Money.Amount, 64)
		if err != nil {
			return
		}
		sum += f
	}

	tolerance := math.Max(0.01, math.Abs(total)*a.cfg.TolerancePct/100)
	gap := math.Abs(sum - total)
	if gap <= tolerance {
		return
	}

	syn, _ := d.First(a.cfg.TotalCategory)
	delete(d.Syntheses, a.cfg.TotalCategory)
	d.Rejected = append(d.Rejected, fact.ValidationResult{
		Synthesis: syn,
		Status:    fact.StatusFlagged,
		Reasons: []string{fmt.Sprintf(
			"line item sum %.2f does not reconcile with total %.2f (gap %.2f, tolerance %.2f)",
			sum, total, gap, tolerance)},
	})
	a.logger.Warn("assemble.reconcile_failed",
		"artifact_id", d.SourceArtifactID,
		"total", total, "line_sum", sum, "tolerance", tolerance,
	)
}

func singleAmount(d *fact.Digest, id fact.CategoryID) (float64, bool) {
	syn, ok := d.First(id)
	if !ok || syn.Value.Money == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(syn.Value.Money.Amount, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
