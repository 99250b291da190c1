// Package categorize groups the token stream into snippets and assigns
// candidate categories via a model-backed classifier. Grouping is a
// best-effort heuristic, not ground truth: the synthesizer downstream
// tolerates both under- and over-segmentation.
package categorize

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/fact"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
)

// Classifier is the external classification collaborator: a text window
// in, a confidence per category out. Scores are opaque floats; the
// categorizer's only added logic is thresholding and span grouping.
type Classifier interface {
	Classify(ctx context.Context, textWindow string, categories []string) (map[fact.CategoryID]float32, error)
}

// Config holds the tunable window sizing and merging policy.
type Config struct {
	MinCandidateConfidence float32 // discard candidates below this; default 0.30
	MaxWindowTokens        int     // window size cap; default 12
	Workers                int     // classification concurrency; default 4
}

func (c Config) withDefaults() Config {
	if c.MinCandidateConfidence <= 0 {
		c.MinCandidateConfidence = 0.30
	}
	if c.MaxWindowTokens <= 0 {
		c.MaxWindowTokens = 12
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// Result preserves the full token partition: every input token appears
// in exactly one snippet, either classified or explicitly unclassified.
// Unclassified snippets are retained for audit and dropped before
// synthesis.
type Result struct {
	Snippets     []fact.Snippet
	Unclassified []fact.Snippet
}

type Categorizer struct {
	schema     *schema.Schema
	classifier Classifier
	cfg        Config
	logger     *slog.Logger
}

func New(s *schema.Schema, cl Classifier, cfg Config, logger *slog.Logger) *Categorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{schema: s, classifier: cl, cfg: cfg.withDefaults(), logger: logger}
}

// Categorize windows the token stream, classifies each window
// concurrently and greedily merges contiguous windows whose top
// candidate agrees. A window whose classification fails (after the
// client's retry budget) becomes unclassified rather than failing the
// artifact.
func (c *Categorizer) Categorize(ctx context.Context, tokens []fact.Token) (Result, error) {
	if len(tokens) == 0 {
		return Result{}, nil
	}

	windows := splitWindows(tokens, c.cfg.MaxWindowTokens)
	candidates := c.classifyAll(ctx, windows)

	order := c.schema.Order()
	var res Result
	var span []fact.Token
	var spanCands map[fact.CategoryID]float32
	var spanTop fact.CategoryID
	classified := false

	flush := func() {
		if len(span) == 0 {
			return
		}
		sn := fact.Snippet{Tokens: span, Candidates: spanCands}
		if classified {
			res.Snippets = append(res.Snippets, sn)
		} else {
			res.Unclassified = append(res.Unclassified, sn)
		}
		span, spanCands, spanTop, classified = nil, nil, "", false
	}

	for i, w := range windows {
		cands := c.threshold(candidates[i])
		sn := fact.Snippet{Candidates: cands}
		top, _, hasTop := sn.TopCandidate(order)

		switch {
		case len(cands) == 0:
			// unclassified windows merge with a preceding unclassified run
			if classified {
				flush()
			}
			span = append(span, w...)
		case !classified && len(span) > 0:
			flush()
			fallthrough
		default:
			// extend greedily while contiguous windows agree on the top
			// candidate and stay on the same page
			samePage := len(span) > 0 && span[len(span)-1].Page == w[0].Page
			if classified && hasTop && top == spanTop && samePage {
				span = append(span, w...)
				spanCands = mergeMax(spanCands, cands)
			} else {
				flush()
				span = append([]fact.Token(nil), w...)
				spanCands = cands
				spanTop = top
				classified = true
			}
		}
	}
	flush()

	c.logger.Info("categorize.ok",
		"tokens", len(tokens),
		"windows", len(windows),
		"snippets", len(res.Snippets),
		"unclassified", len(res.Unclassified),
	)
	return res, nil
}

// classifyAll fans classification calls out over a bounded worker pool
// and restores window order by index.
func (c *Categorizer) classifyAll(ctx context.Context, windows [][]fact.Token) []map[fact.CategoryID]float32 {
	out := make([]map[fact.CategoryID]float32, len(windows))
	ids := c.schema.IDs()

	sem := make(chan struct{}, c.cfg.Workers)
	var wg sync.WaitGroup
	for i, w := range windows {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, w []fact.Token) {
			defer wg.Done()
			defer func() { <-sem }()
			scores, err := c.classifier.Classify(ctx, fact.SpanText(w), ids)
			if err != nil {
				c.logger.Warn("categorize.window_failed", "window", i, "tokens", len(w), "error", err)
				return // window stays unclassified
			}
			out[i] = scores
		}(i, w)
	}
	wg.Wait()
	return out
}

// threshold keeps candidates at or above the configured minimum and
// drops IDs the active schema does not declare.
func (c *Categorizer) threshold(scores map[fact.CategoryID]float32) map[fact.CategoryID]float32 {
	if len(scores) == 0 {
		return nil
	}
	out := make(map[fact.CategoryID]float32)
	for id, conf := range scores {
		if conf < c.cfg.MinCandidateConfidence {
			continue
		}
		if _, known := c.schema.Category(id); !known {
			continue
		}
		out[id] = conf
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// splitWindows cuts the token stream into classification windows, never
// spanning a page or line boundary and never exceeding maxTokens. Lines
// are inferred from vertical bbox overlap.
func splitWindows(tokens []fact.Token, maxTokens int) [][]fact.Token {
	var windows [][]fact.Token
	var cur []fact.Token

	for _, t := range tokens {
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			if t.Page != prev.Page || !sameLine(prev, t) || len(cur) >= maxTokens {
				windows = append(windows, cur)
				cur = nil
			}
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		windows = append(windows, cur)
	}
	return windows
}

// sameLine reports whether two tokens vertically overlap by at least
// half the shorter token's height.
func sameLine(a, b fact.Token) bool {
	aTop, aBot := a.BBox.Top, a.BBox.Top+a.BBox.Height
	bTop, bBot := b.BBox.Top, b.BBox.Top+b.BBox.Height
	overlap := min(aBot, bBot) - max(aTop, bTop)
	if overlap <= 0 {
		return false
	}
	h := min(a.BBox.Height, b.BBox.Height)
	if h <= 0 {
		return true
	}
	return overlap*2 >= h
}

func mergeMax(dst, src map[fact.CategoryID]float32) map[fact.CategoryID]float32 {
	if dst == nil {
		dst = make(map[fact.CategoryID]float32, len(src))
	}
	for id, conf := range src {
		if conf > dst[id] {
			dst[id] = conf
		}
	}
	return dst
}
