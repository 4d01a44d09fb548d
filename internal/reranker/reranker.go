// Package reranker re-orders retrieved candidates by boosting the index
// similarity with metadata signals, then applies the relevance floor.
//
// Re-ranking is deterministic: the same candidates and query always produce
// the same order and scores. Boosts are computed from the index similarity,
// never from a previously boosted score, so re-ranking an already re-ranked
// list is a no-op.
package reranker

import (
	"context"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// Reranker defines the interface for re-ranking retrieved candidates.
type Reranker interface {
	// Rerank returns the candidates re-ordered by final score, at most topK
	// of them. A topK of zero or less keeps every candidate.
	Rerank(ctx context.Context, query string, candidates []knowledge.Candidate, topK int) ([]knowledge.Candidate, error)
}

// Filter drops candidates whose final score is below floor, preserving order.
func Filter(candidates []knowledge.Candidate, floor float64) []knowledge.Candidate {
	out := make([]knowledge.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= floor {
			out = append(out, c)
		}
	}
	return out
}
