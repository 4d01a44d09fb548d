package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"github.com/philippgille/chromem-go"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/embedder"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// ChromemIndex implements Index with an in-process chromem-go collection,
// optionally persisted to disk.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *slog.Logger
}

// ChromemConfig configures a ChromemIndex.
type ChromemConfig struct {
	// PersistPath is the directory the collection is stored in. Empty keeps
	// the collection in memory only.
	PersistPath string
	Collection  string
	Logger      *slog.Logger
}

// NewChromemIndex opens (or creates) the collection, embedding documents and
// queries with embed.
func NewChromemIndex(cfg ChromemConfig, embed chromem.EmbeddingFunc) (*ChromemIndex, error) {
	if embed == nil {
		return nil, fmt.Errorf("%w: chromem index requires an embedding function", knowledge.ErrConfiguration)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.PersistPath == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("%w: open chromem db: %w", knowledge.ErrIndexUnavailable, err)
		}
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, tagEmbeddingErrors(embed))
	if err != nil {
		return nil, fmt.Errorf("%w: open collection: %w", knowledge.ErrIndexUnavailable, err)
	}

	return &ChromemIndex{db: db, collection: collection, logger: logger}, nil
}

// EmbeddingFunc adapts an Embedder for chromem-go.
func EmbeddingFunc(e embedder.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.Embed(ctx, text)
	}
}

func tagEmbeddingErrors(embed chromem.EmbeddingFunc) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		v, err := embed(ctx, text)
		if err != nil {
			return nil, embeddingError(err)
		}
		return v, nil
	}
}

// Ready reports whether the collection holds any passages.
func (s *ChromemIndex) Ready(_ context.Context) error {
	if s.collection.Count() == 0 {
		return fmt.Errorf("%w: collection %q is empty", knowledge.ErrIndexUnavailable, s.collection.Name)
	}
	return nil
}

// Search performs similarity search.
func (s *ChromemIndex) Search(ctx context.Context, query string, topK int, minScore float64, filters map[string]string) ([]knowledge.Candidate, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, fmt.Errorf("%w: collection %q is empty", knowledge.ErrIndexUnavailable, s.collection.Name)
	}
	n := min(topK, count)
	if n <= 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filters) > 0 {
		where = filters
	}

	results, err := s.collection.Query(ctx, query, n, where, nil)
	if err != nil {
		if errors.Is(err, knowledge.ErrEmbedding) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query collection: %w", err)
		}
		return nil, fmt.Errorf("%w: query collection: %w", knowledge.ErrIndexUnavailable, err)
	}

	candidates := make([]knowledge.Candidate, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < minScore {
			continue
		}
		fields := make(map[string]string, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			fields[k] = v
		}
		fields[keyContent] = r.Content

		c, ok := candidateFromFields(r.ID, score, fields)
		if !ok {
			s.logger.Warn("dropping malformed document", "document_id", r.ID, "collection", s.collection.Name)
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// Add stores passages, embedding those without a vector.
func (s *ChromemIndex) Add(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(passages))
	for i, p := range passages {
		fields := passageFields(p)
		delete(fields, keyPassageID)
		docs[i] = chromem.Document{
			ID:        passageID(p),
			Metadata:  fields,
			Embedding: p.Vector,
			Content:   p.Text,
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// Count returns the number of stored passages.
func (s *ChromemIndex) Count() int {
	return s.collection.Count()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ Index  = (*ChromemIndex)(nil)
	_ Loader = (*ChromemIndex)(nil)
)
