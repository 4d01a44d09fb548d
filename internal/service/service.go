// Package service sequences the guardrail, retrieval, source resolution and
// generation stages into a single answer for one query.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/llm"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/retrieval"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/sources"
)

// Retriever finds the passages an answer is grounded on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) (*knowledge.RetrievalResult, error)
	Ready(ctx context.Context) error
}

// SourceResolver chooses citations and the fallback tier.
type SourceResolver interface {
	Resolve(query string, candidates []knowledge.Candidate) sources.Resolution
	Category(query string) knowledge.InformationCategory
}

// Guardrail screens queries and generated answers for investment advice.
type Guardrail interface {
	CheckQuery(text string) (bool, *knowledge.Violation)
	CheckResponse(text string) (bool, []knowledge.Violation)
	Sanitize(text string, violations []knowledge.Violation) string
	SafeResponseTemplate() string
}

// Config holds the per-request limits of the pipeline.
type Config struct {
	TopK            int
	SimilarityFloor float64
	// ContextMaxTokens bounds the passages placed in the prompt.
	ContextMaxTokens int
	MaxQueryLength   int
	// RequestTimeout bounds each external call (search, generation).
	RequestTimeout time.Duration

	Model       string
	Temperature float32
	MaxTokens   int
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		TopK:             5,
		SimilarityFloor:  0.5,
		ContextMaxTokens: 2000,
		MaxQueryLength:   1000,
		RequestTimeout:   30 * time.Second,
		Temperature:      0.1,
		MaxTokens:        500,
	}
}

// Request is one question to answer.
type Request struct {
	Query     string
	SessionID string
	// Filters restrict retrieval by passage metadata, e.g. {"amc_name": "HDFC"}.
	Filters map[string]string
}

// AnswerService answers mutual fund questions. It holds no per-request
// state and is safe for concurrent use.
type AnswerService struct {
	guard     Guardrail
	retriever Retriever
	resolver  SourceResolver
	llm       llm.LLM
	cfg       Config
	observer  Observer
	logger    *slog.Logger
}

// Option configures an AnswerService.
type Option func(*AnswerService)

// WithConfig replaces the default limits. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *AnswerService) {
		def := s.cfg
		if cfg.TopK <= 0 {
			cfg.TopK = def.TopK
		}
		if cfg.SimilarityFloor < 0 {
			cfg.SimilarityFloor = def.SimilarityFloor
		}
		if cfg.ContextMaxTokens <= 0 {
			cfg.ContextMaxTokens = def.ContextMaxTokens
		}
		if cfg.MaxQueryLength <= 0 {
			cfg.MaxQueryLength = def.MaxQueryLength
		}
		if cfg.RequestTimeout <= 0 {
			cfg.RequestTimeout = def.RequestTimeout
		}
		if cfg.MaxTokens <= 0 {
			cfg.MaxTokens = def.MaxTokens
		}
		s.cfg = cfg
	}
}

// WithObserver registers a stage observer, typically the metrics recorder.
func WithObserver(o Observer) Option {
	return func(s *AnswerService) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *AnswerService) {
		s.logger = logger
	}
}

// NewAnswerService creates the orchestrator from its collaborators.
func NewAnswerService(guard Guardrail, retriever Retriever, resolver SourceResolver, client llm.LLM, opts ...Option) *AnswerService {
	s := &AnswerService{
		guard:     guard,
		retriever: retriever,
		resolver:  resolver,
		llm:       client,
		cfg:       DefaultConfig(),
		observer:  nopObserver{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective limits.
func (s *AnswerService) Config() Config {
	return s.cfg
}

// Health reports whether the passage index can serve queries.
func (s *AnswerService) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return s.retriever.Ready(ctx)
}
