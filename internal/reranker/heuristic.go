package reranker

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// Weights are the multiplicative boosts applied to the index similarity.
type Weights struct {
	// ContentType scales by the kind of page. Types not listed use 1.0.
	ContentType map[knowledge.ContentType]float64
	// TitleMatch is raised to the number of query tokens found in the title.
	TitleMatch float64
	// FirstParty applies when the passage carries a first-party mapping.
	FirstParty float64
}

// DefaultWeights returns the standard boost table.
func DefaultWeights() Weights {
	return Weights{
		ContentType: map[knowledge.ContentType]float64{
			knowledge.ContentTypeFundPage:    1.2,
			knowledge.ContentTypeAMCOverview: 1.1,
			knowledge.ContentTypeBlog:        0.95,
		},
		TitleMatch: 1.05,
		FirstParty: 1.05,
	}
}

// Heuristic re-ranks with metadata boosts. It holds no mutable state.
type Heuristic struct {
	weights Weights
}

// Option configures a Heuristic.
type Option func(*Heuristic)

// WithWeights replaces the boost table.
func WithWeights(w Weights) Option {
	return func(h *Heuristic) {
		h.weights = w
	}
}

// NewHeuristic creates a heuristic re-ranker.
func NewHeuristic(opts ...Option) *Heuristic {
	h := &Heuristic{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Rerank scores every candidate, sorts by score descending keeping the input
// order for ties, and truncates to topK.
func (h *Heuristic) Rerank(_ context.Context, query string, candidates []knowledge.Candidate, topK int) ([]knowledge.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	tokens := queryTokens(query)
	out := make([]knowledge.Candidate, len(candidates))
	for i, c := range candidates {
		if c.Similarity == 0 {
			c.Similarity = c.Score
		}
		c.Score = h.score(c, tokens)
		out[i] = c
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (h *Heuristic) score(c knowledge.Candidate, tokens []string) float64 {
	score := c.Similarity

	if f, ok := h.weights.ContentType[c.Metadata.ContentType]; ok {
		score *= f
	}

	if title := strings.ToLower(c.Metadata.Title); title != "" && h.weights.TitleMatch > 0 {
		matches := 0
		for _, tok := range tokens {
			if strings.Contains(title, tok) {
				matches++
			}
		}
		if matches > 0 {
			score *= math.Pow(h.weights.TitleMatch, float64(matches))
		}
	}

	if c.Metadata.FirstPartyURL != "" && h.weights.FirstParty > 0 {
		score *= h.weights.FirstParty
	}

	return math.Max(0, math.Min(score, 1.0))
}

func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, `.,!?;:"'()[]{}`); f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

var _ Reranker = (*Heuristic)(nil)
