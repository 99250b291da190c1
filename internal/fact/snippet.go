package fact

import "sort"

// Snippet is a contiguous span of tokens with zero or more candidate
// categories. A snippet with no candidates is retained for audit but
// dropped before synthesis. The candidate set is intentionally
// multi-label: the synthesizer and validator have more context (type
// checks, semantic rules) to resolve ambiguity than the categorizer.
type Snippet struct {
	Tokens     []Token                `json:"tokens"`
	Candidates map[CategoryID]float32 `json:"candidates"` // categorizer confidence per candidate
}

// Text returns the snippet's raw span text.
func (s Snippet) Text() string { return SpanText(s.Tokens) }

// Unclassified reports whether the snippet carries no candidate category.
func (s Snippet) Unclassified() bool { return len(s.Candidates) == 0 }

// StartSeq is the reading-order position of the snippet's first token.
func (s Snippet) StartSeq() int {
	if len(s.Tokens) == 0 {
		return 0
	}
	return s.Tokens[0].Seq
}

// TopCandidate returns the highest-confidence candidate. Ties break by
// the supplied category order (the schema's declaration order) so that
// re-running the pipeline on identical inputs is deterministic.
func (s Snippet) TopCandidate(order []CategoryID) (CategoryID, float32, bool) {
	ranked := s.RankedCandidates(order)
	if len(ranked) == 0 {
		return "", 0, false
	}
	return ranked[0], s.Candidates[ranked[0]], true
}

// RankedCandidates returns candidate IDs in descending confidence order,
// with equal confidences broken by the supplied category order.
func (s Snippet) RankedCandidates(order []CategoryID) []CategoryID {
	rank := make(map[CategoryID]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	out := make([]CategoryID, 0, len(s.Candidates))
	for id := range s.Candidates {
		out = append(out, id)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := s.Candidates[out[i]], s.Candidates[out[j]]
		if ci != cj {
			return ci > cj
		}
		return rank[out[i]] < rank[out[j]]
	})
	return out
}
