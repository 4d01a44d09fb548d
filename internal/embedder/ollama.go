package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

const (
	// DefaultOllamaBaseURL is the default Ollama API base URL.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultBatchConcurrency is the default number of concurrent embedding requests.
	DefaultBatchConcurrency = 4

	// DefaultCacheSize is the number of query vectors kept in memory.
	DefaultCacheSize = 1024
)

// OllamaConfig holds configuration for the Ollama embedder.
type OllamaConfig struct {
	BaseURL          string
	Model            string
	Dimension        int
	BatchConcurrency int
	// CacheSize bounds the LRU cache of computed vectors. Negative disables it.
	CacheSize  int
	HTTPClient *http.Client
}

// OllamaEmbedder calls a local Ollama server. Vectors are cached by exact
// input text, so repeated questions skip the network.
type OllamaEmbedder struct {
	baseURL          string
	model            string
	dimension        int
	batchConcurrency int
	client           *http.Client
	cache            *lru.Cache[string, []float32]
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaEmbedder fills unset fields of cfg with defaults.
func NewOllamaEmbedder(cfg OllamaConfig) (*OllamaEmbedder, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DimensionFor(model)
	}

	batchConcurrency := cfg.BatchConcurrency
	if batchConcurrency <= 0 {
		batchConcurrency = DefaultBatchConcurrency
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	e := &OllamaEmbedder{
		baseURL:          baseURL,
		model:            model,
		dimension:        dimension,
		batchConcurrency: batchConcurrency,
		client:           client,
	}

	size := cfg.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		cache, err := lru.New[string, []float32](size)
		if err != nil {
			return nil, fmt.Errorf("create embedding cache: %w", err)
		}
		e.cache = cache
	}

	return e, nil
}

// Embed returns the vector for text, consulting the cache first.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cached(text); ok {
		return v, nil
	}
	v, err := e.fetch(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", knowledge.ErrEmbedding, err)
	}
	if e.cache != nil {
		e.cache.Add(text, v)
	}
	return v, nil
}

func (e *OllamaEmbedder) cached(text string) ([]float32, bool) {
	if e.cache == nil {
		return nil, false
	}
	return e.cache.Get(text)
}

// fetch performs one /api/embeddings round trip.
func (e *OllamaEmbedder) fetch(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", e.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("ollama returned an empty embedding")
	}

	v := make([]float32, len(out.Embedding))
	for i, f := range out.Embedding {
		v[i] = float32(f)
	}
	return v, nil
}

// EmbedBatch embeds texts in order. Repeated inputs are requested once and
// at most batchConcurrency requests run at a time; the first failure cancels
// the rest.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	// positions of each distinct text still missing a vector
	pending := make(map[string][]int)
	var order []string
	for i, t := range texts {
		if v, ok := e.cached(t); ok {
			results[i] = v
			continue
		}
		if _, seen := pending[t]; !seen {
			order = append(order, t)
		}
		pending[t] = append(pending[t], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.batchConcurrency)
	for _, t := range order {
		g.Go(func() error {
			v, err := e.Embed(gctx, t)
			if err != nil {
				return fmt.Errorf("input %d: %w", pending[t][0], err)
			}
			for _, i := range pending[t] {
				results[i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Dimension returns the dimensionality of the embedding vectors.
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model being used.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

var _ Embedder = (*OllamaEmbedder)(nil)
