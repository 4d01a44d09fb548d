package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

type searchCall struct {
	query    string
	topK     int
	minScore float64
	filters  map[string]string
}

type fakeIndex struct {
	results  []knowledge.Candidate
	err      error
	readyErr error
	calls    []searchCall
}

func (f *fakeIndex) Search(_ context.Context, query string, topK int, minScore float64, filters map[string]string) ([]knowledge.Candidate, error) {
	f.calls = append(f.calls, searchCall{query: query, topK: topK, minScore: minScore, filters: filters})
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeIndex) Ready(context.Context) error { return f.readyErr }

func candidate(id string, sim float64, text string) knowledge.Candidate {
	return knowledge.Candidate{
		ID:         id,
		Text:       text,
		SourceURL:  "https://www.amfiindia.com/" + id,
		Similarity: sim,
		Score:      sim,
	}
}

func TestRetrieve_OverfetchAndRelaxedFloor(t *testing.T) {
	idx := &fakeIndex{}
	rt := NewRetriever(idx)

	filters := map[string]string{"amc_name": "HDFC"}
	_, err := rt.Retrieve(context.Background(), "  expense   ratio\tof HDFC  ", Options{TopK: 3, SimilarityFloor: 0.5, Filters: filters})
	require.NoError(t, err)

	require.Len(t, idx.calls, 1)
	call := idx.calls[0]
	assert.Equal(t, "expense ratio of HDFC", call.query)
	assert.Equal(t, 6, call.topK)
	assert.InDelta(t, 0.4, call.minScore, 1e-9)
	assert.Equal(t, filters, call.filters)
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	idx := &fakeIndex{}
	_, err := NewRetriever(idx).Retrieve(context.Background(), "nav", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2*DefaultTopK, idx.calls[0].topK)
	assert.Zero(t, idx.calls[0].minScore)
}

func TestRetrieve_RankAndFilter(t *testing.T) {
	idx := &fakeIndex{results: []knowledge.Candidate{
		candidate("a", 0.9, "Exit load is 1 percent within one year"),
		candidate("b", 0.45, "Lock-in period for tax saver schemes is three years"),
		candidate("c", 0.6, "Minimum SIP amount starts at five hundred rupees"),
		candidate("d", 0.42, "Benchmark index is the Nifty 100 total return index"),
	}}

	res, err := NewRetriever(idx).Retrieve(context.Background(), "fund facts", Options{TopK: 3, SimilarityFloor: 0.5})
	require.NoError(t, err)

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "a", res.Candidates[0].ID)
	assert.Equal(t, "c", res.Candidates[1].ID)
	assert.Equal(t, "fund facts", res.Query)
	for _, c := range res.Candidates {
		assert.GreaterOrEqual(t, c.Score, 0.5)
	}
}

func TestRetrieve_BoostPromotesBorderline(t *testing.T) {
	fundPage := candidate("fund", 0.45, "HDFC Top 100 expense ratio is 0.5 percent")
	fundPage.Metadata.ContentType = knowledge.ContentTypeFundPage
	blog := candidate("blog", 0.52, "A blog post about mutual fund costs in general")
	blog.Metadata.ContentType = knowledge.ContentTypeBlog

	idx := &fakeIndex{results: []knowledge.Candidate{blog, fundPage}}
	res, err := NewRetriever(idx).Retrieve(context.Background(), "costs", Options{TopK: 5, SimilarityFloor: 0.5})
	require.NoError(t, err)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "fund", res.Candidates[0].ID)
	assert.InDelta(t, 0.54, res.Candidates[0].Score, 1e-9)
}

func TestRetrieve_NothingSurvives(t *testing.T) {
	idx := &fakeIndex{results: []knowledge.Candidate{candidate("a", 0.41, "unrelated passage text here")}}
	res, err := NewRetriever(idx).Retrieve(context.Background(), "nav", Options{TopK: 5, SimilarityFloor: 0.5})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestRetrieve_Deduplicates(t *testing.T) {
	repeat := candidate("b", 0.88, "The expense ratio of HDFC Top 100 direct plan is 0.5 percent.")
	repeat.SourceURL = "https://www.amfiindia.com/a/"
	idx := &fakeIndex{results: []knowledge.Candidate{
		candidate("a", 0.9, "The expense ratio of HDFC Top 100 direct plan is 0.5 percent"),
		repeat,
		candidate("c", 0.8, "Exit load of one percent applies within a year"),
		candidate("a", 0.7, "Duplicate point for the same passage id returned twice"),
	}}

	res, err := NewRetriever(idx).Retrieve(context.Background(), "expense ratio", Options{TopK: 5, SimilarityFloor: 0.5})
	require.NoError(t, err)

	ids := make([]string, len(res.Candidates))
	for i, c := range res.Candidates {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"a", "c"}, ids)

	res, err = NewRetriever(idx, WithDedupThreshold(2)).Retrieve(context.Background(), "expense ratio", Options{TopK: 5, SimilarityFloor: 0.5})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 4)
}

func TestRetrieve_SameTextDifferentPagesKept(t *testing.T) {
	text := "The expense ratio of SBI Bluechip Fund direct plan is 0.85 percent"
	amc := knowledge.Candidate{
		ID: "amc", Text: text, SourceURL: "https://www.sbimf.com/bluechip",
		Similarity: 0.9, Score: 0.9,
	}
	groww := knowledge.Candidate{
		ID: "groww", Text: text, SourceURL: "https://groww.in/mutual-funds/sbi-bluechip-fund-direct-growth",
		Similarity: 0.85, Score: 0.85,
		Metadata: knowledge.Metadata{ContentType: knowledge.ContentTypeFundPage},
	}

	idx := &fakeIndex{results: []knowledge.Candidate{amc, groww}}
	res, err := NewRetriever(idx).Retrieve(context.Background(), "expense ratio", Options{TopK: 5, SimilarityFloor: 0.5})
	require.NoError(t, err)

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "groww", res.Candidates[0].ID)
	assert.Equal(t, "amc", res.Candidates[1].ID)
}

func TestRetrieve_DeduplicatesAfterTopK(t *testing.T) {
	idx := &fakeIndex{results: []knowledge.Candidate{
		candidate("a", 0.9, "Exit load is one percent within a year"),
		candidate("a", 0.85, "Exit load is one percent within a year"),
		candidate("b", 0.8, "Minimum SIP amount is five hundred rupees"),
	}}
	res, err := NewRetriever(idx).Retrieve(context.Background(), "exit load", Options{TopK: 2, SimilarityFloor: 0.5})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "b", res.Candidates[1].ID)
}

func TestRetrieve_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"index unavailable", fmt.Errorf("%w: connection refused", knowledge.ErrIndexUnavailable)},
		{"embedding", fmt.Errorf("%w: model missing", knowledge.ErrEmbedding)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &fakeIndex{err: tt.err}
			_, err := NewRetriever(idx).Retrieve(context.Background(), "nav", Options{TopK: 5})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Len(t, idx.calls, 1)
		})
	}
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	idx := &fakeIndex{}
	_, err := NewRetriever(idx).Retrieve(context.Background(), " \n\t ", Options{})
	assert.ErrorIs(t, err, knowledge.ErrQueryValidation)
	assert.Empty(t, idx.calls)
}

type failingReranker struct{}

func (failingReranker) Rerank(context.Context, string, []knowledge.Candidate, int) ([]knowledge.Candidate, error) {
	return nil, errors.New("boom")
}

func TestRetrieve_RerankerError(t *testing.T) {
	idx := &fakeIndex{results: []knowledge.Candidate{candidate("a", 0.9, "text of a passage")}}
	_, err := NewRetriever(idx, WithReranker(failingReranker{})).Retrieve(context.Background(), "nav", Options{})
	assert.ErrorContains(t, err, "rerank")
}

func TestReady(t *testing.T) {
	idx := &fakeIndex{readyErr: knowledge.ErrIndexUnavailable}
	assert.ErrorIs(t, NewRetriever(idx).Ready(context.Background()), knowledge.ErrIndexUnavailable)
}

func TestJaccardSimilarity(t *testing.T) {
	a := tokenize("expense ratio is low")
	b := tokenize("Expense ratio is high!")
	assert.InDelta(t, 2.0/4.0, jaccardSimilarity(a, b), 1e-9)
	assert.Equal(t, 1.0, jaccardSimilarity(map[string]struct{}{}, map[string]struct{}{}))
	assert.Equal(t, 0.0, jaccardSimilarity(a, map[string]struct{}{}))
}
