package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

func newOllamaStub(t *testing.T, calls *atomic.Int32, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req ollamaRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("model not found"))
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float64{float64(len(req.Prompt)), 0.5, 0.25}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_EmbedCaches(t *testing.T) {
	var calls atomic.Int32
	srv := newOllamaStub(t, &calls, http.StatusOK)

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	v1, err := e.Embed(context.Background(), "exit load")
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 0.5, 0.25}, v1)

	v2, err := e.Embed(context.Background(), "exit load")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaEmbedder_CacheDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := newOllamaStub(t, &calls, http.StatusOK)

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, CacheSize: -1})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.Embed(context.Background(), "nav")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaEmbedder_ErrorStatus(t *testing.T) {
	var calls atomic.Int32
	srv := newOllamaStub(t, &calls, http.StatusNotFound)

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "nav")
	require.Error(t, err)
	assert.ErrorIs(t, err, knowledge.ErrEmbedding)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "model not found")

	_, err = e.EmbedBatch(context.Background(), []string{"nav", "aum"})
	assert.ErrorIs(t, err, knowledge.ErrEmbedding)
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	var calls atomic.Int32
	srv := newOllamaStub(t, &calls, http.StatusOK)

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, BatchConcurrency: 2})
	require.NoError(t, err)

	got, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, v := range got {
		assert.Equal(t, float32(i+1), v[0])
	}

	assert.Equal(t, int32(3), calls.Load())

	empty, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOllamaEmbedder_EmbedBatchDeduplicates(t *testing.T) {
	var calls atomic.Int32
	srv := newOllamaStub(t, &calls, http.StatusOK)

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "sip")
	require.NoError(t, err)

	got, err := e.EmbedBatch(context.Background(), []string{"nav", "sip", "nav", "expense"})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, got[0], got[2])
	assert.Equal(t, float32(3), got[1][0])
	assert.Equal(t, float32(7), got[3][0])
	// sip came from the cache and nav was requested once.
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaEmbedder_EmptyEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[]}`))
	}))
	t.Cleanup(srv.Close)

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "nav")
	assert.ErrorIs(t, err, knowledge.ErrEmbedding)
}

func TestDimensionFor(t *testing.T) {
	assert.Equal(t, 384, DimensionFor("all-minilm"))
	assert.Equal(t, 768, DimensionFor("unknown"))

	e, err := NewOllamaEmbedder(OllamaConfig{Model: "mxbai-embed-large"})
	require.NoError(t, err)
	assert.Equal(t, 1024, e.Dimension())
	assert.Equal(t, "mxbai-embed-large", e.ModelName())
}
