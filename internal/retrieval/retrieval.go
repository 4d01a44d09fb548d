// Package retrieval turns a user query into the ranked passages an answer
// is grounded on.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/reranker"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/vectorstore"
)

const (
	// DefaultTopK is used when Options.TopK is not positive.
	DefaultTopK = 5
	// DefaultDedupThreshold is the word-set overlap at which two passages
	// count as the same.
	DefaultDedupThreshold = 0.7

	// overfetch is how many candidates are requested per kept candidate.
	overfetch = 2
	// relaxFloor scales the floor handed to the index so that re-ranking can
	// promote borderline passages.
	relaxFloor = 0.8
)

// Options controls a single retrieval.
type Options struct {
	TopK            int
	SimilarityFloor float64
	// Filters restrict results by metadata field, e.g. {"amc_name": "HDFC"}.
	Filters map[string]string
}

// Retriever searches the index, re-ranks the hits and applies the
// relevance floor.
type Retriever struct {
	index          vectorstore.Index
	reranker       reranker.Reranker
	dedupThreshold float64
	logger         *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithReranker replaces the default heuristic re-ranker.
func WithReranker(r reranker.Reranker) Option {
	return func(rt *Retriever) {
		rt.reranker = r
	}
}

// WithDedupThreshold sets the word-set overlap above which a lower-ranked
// passage from the same page is dropped as a near duplicate. A value above 1
// disables de-duplication.
func WithDedupThreshold(threshold float64) Option {
	return func(rt *Retriever) {
		rt.dedupThreshold = threshold
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Retriever) {
		rt.logger = logger
	}
}

// NewRetriever creates a retriever over index.
func NewRetriever(index vectorstore.Index, opts ...Option) *Retriever {
	rt := &Retriever{
		index:          index,
		reranker:       reranker.NewHeuristic(),
		dedupThreshold: DefaultDedupThreshold,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Retrieve returns at most opts.TopK candidates whose final score is at
// least opts.SimilarityFloor, best first. Index and embedding failures are
// returned as-is; the caller decides whether to retry.
func (rt *Retriever) Retrieve(ctx context.Context, query string, opts Options) (*knowledge.RetrievalResult, error) {
	start := time.Now()

	query = NormalizeQuery(query)
	if query == "" {
		return nil, knowledge.ErrEmptyQuery
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	floor := max(opts.SimilarityFloor, 0)

	raw, err := rt.index.Search(ctx, query, overfetch*topK, relaxFloor*floor, opts.Filters)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	found := len(raw)

	// Rank everything first so duplicates are resolved on boosted scores.
	ranked, err := rt.reranker.Rerank(ctx, query, raw, len(raw))
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	ranked = deduplicate(ranked, rt.dedupThreshold)
	dropped := found - len(ranked)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	kept := reranker.Filter(ranked, floor)

	elapsed := time.Since(start)
	rt.logger.Debug("retrieval complete",
		"found", found,
		"deduplicated", dropped,
		"kept", len(kept),
		"top_k", topK,
		"floor", floor,
		"duration_ms", elapsed.Milliseconds(),
	)

	return &knowledge.RetrievalResult{
		Candidates:      kept,
		Query:           query,
		RetrievalTimeMs: elapsed.Milliseconds(),
	}, nil
}

// Ready reports whether the underlying index can serve queries.
func (rt *Retriever) Ready(ctx context.Context) error {
	return rt.index.Ready(ctx)
}

// NormalizeQuery trims the query and collapses internal whitespace.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// deduplicate removes repeated points of one passage: the same id, or the
// same source URL with near-identical wording (Jaccard on word sets).
// Passages from different pages are always kept so each page can be cited.
// Input order is kept.
func deduplicate(candidates []knowledge.Candidate, threshold float64) []knowledge.Candidate {
	if len(candidates) <= 1 || threshold > 1 {
		return candidates
	}

	wordSets := make([]map[string]struct{}, len(candidates))
	for i, c := range candidates {
		wordSets[i] = tokenize(c.Text)
	}

	keep := make([]bool, len(candidates))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(candidates); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			if !keep[j] {
				continue
			}
			// candidates arrive best first, so j is always the weaker copy
			if sameID(candidates[i], candidates[j]) ||
				(sameSource(candidates[i], candidates[j]) && jaccardSimilarity(wordSets[i], wordSets[j]) >= threshold) {
				keep[j] = false
			}
		}
	}

	out := make([]knowledge.Candidate, 0, len(candidates))
	for i, c := range candidates {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

func sameID(a, b knowledge.Candidate) bool {
	return a.ID != "" && a.ID == b.ID
}

func sameSource(a, b knowledge.Candidate) bool {
	return strings.EqualFold(strings.TrimSuffix(a.SourceURL, "/"), strings.TrimSuffix(b.SourceURL, "/"))
}

// tokenize converts content into a set of lowercase words for similarity comparison.
func tokenize(content string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(content))
	wordSet := make(map[string]struct{}, len(words))
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'()[]{}=<>")
		if len(word) > 2 {
			wordSet[word] = struct{}{}
		}
	}
	return wordSet
}

// jaccardSimilarity computes the Jaccard similarity between two word sets.
// Returns a value between 0 (no overlap) and 1 (identical).
func jaccardSimilarity(set1, set2 map[string]struct{}) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for word := range set1 {
		if _, exists := set2[word]; exists {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection

	return float64(intersection) / float64(union)
}
