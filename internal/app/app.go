// Package app assembles the answer pipeline from configuration. Both the
// server and the CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/auth"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/config"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/embedder"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/guardrail"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/llm"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/metrics"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/repository"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/repository/postgres"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/retrieval"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/service"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/sources"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/vectorstore"
)

// index is what the pipeline needs from a backend: search plus seeding.
type index interface {
	vectorstore.Index
	vectorstore.Loader
}

// Ensure interfaces are satisfied at compile time
var (
	_ index             = (*vectorstore.QdrantIndex)(nil)
	_ index             = (*vectorstore.ChromemIndex)(nil)
	_ embedder.Embedder = (*embedder.OllamaEmbedder)(nil)
	_ llm.LLM           = (*llm.OllamaClient)(nil)
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Embedder *embedder.OllamaEmbedder
	Index    vectorstore.Index
	Loader   vectorstore.Loader
	Guard    *guardrail.Engine
	Resolver *sources.Resolver
	LLM      llm.LLM
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Service  *service.AnswerService

	// Interactions is nil until OpenAuditLog succeeds with a DATABASE_URL.
	Interactions repository.InteractionRepository

	db      *postgres.DB
	closers []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	llm      llm.LLM
	registry *prometheus.Registry
}

// WithLLM replaces the Ollama generation client.
func WithLLM(client llm.LLM) Option {
	return func(o *options) { o.llm = client }
}

// WithRegistry registers metrics with reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// NewLogger builds the process logger: JSON by default, text when LOG_FORMAT
// is "text".
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// New wires the answer pipeline. It does not contact the index or the model;
// use Ready for that.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}

	emb, err := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL:   cfg.OllamaURL,
		Model:     cfg.OllamaEmbeddingModel,
		CacheSize: cfg.EmbeddingCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedder: %w", knowledge.ErrConfiguration, err)
	}
	a.Embedder = emb
	logger.Info("initialized Ollama embedder", "model", emb.ModelName(), "dimension", emb.Dimension())

	idx, err := a.openIndex(emb)
	if err != nil {
		return nil, err
	}
	a.Index, a.Loader = idx, idx

	a.Guard = guardrail.Load(cfg.GuardrailTablePath, logger)

	a.Resolver = sources.NewResolver(
		sources.LoadTable(cfg.SourceTablePath, logger),
		sources.WithBaseURL(cfg.FirstPartyBaseURL),
		sources.WithLogger(logger),
	)

	retriever := retrieval.NewRetriever(idx, retrieval.WithLogger(logger))

	a.LLM = o.llm
	if a.LLM == nil {
		a.LLM = llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.OllamaLLMModel),
			llm.WithTimeout(cfg.RequestTimeout),
			llm.WithAPIKey(cfg.OllamaAPIKey),
		)
		logger.Info("initialized Ollama LLM", "model", cfg.OllamaLLMModel)
	}

	a.Registry = o.registry
	if a.Registry == nil {
		a.Registry = metrics.NewRegistry()
	}
	a.Metrics = metrics.MustNewMetrics(a.Registry)

	a.Service = service.NewAnswerService(a.Guard, retriever, a.Resolver, a.LLM,
		service.WithConfig(ServiceConfig(cfg)),
		service.WithObserver(a.Metrics),
		service.WithLogger(logger),
	)

	return a, nil
}

// ServiceConfig maps the environment configuration onto pipeline limits.
func ServiceConfig(cfg *config.Config) service.Config {
	return service.Config{
		TopK:             cfg.TopK,
		SimilarityFloor:  cfg.SimilarityThreshold,
		ContextMaxTokens: cfg.ContextMaxTokens,
		MaxQueryLength:   cfg.MaxQueryLength,
		RequestTimeout:   cfg.RequestTimeout,
		Model:            cfg.OllamaLLMModel,
		Temperature:      cfg.LLMTemperature,
		MaxTokens:        cfg.LLMMaxTokens,
	}
}

func (a *App) openIndex(emb *embedder.OllamaEmbedder) (index, error) {
	switch a.Config.VectorBackend {
	case config.BackendChromem:
		idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{
			PersistPath: a.Config.ChromemPersistPath,
			Collection:  a.Config.QdrantCollection,
			Logger:      a.Logger,
		}, vectorstore.EmbeddingFunc(emb))
		if err != nil {
			return nil, fmt.Errorf("open chromem index: %w", err)
		}
		a.Logger.Info("opened chromem index", "path", a.Config.ChromemPersistPath, "documents", idx.Count())
		return idx, nil

	case config.BackendQdrant:
		idx, err := vectorstore.NewQdrantIndex(a.Config.QdrantGRPCURL, emb,
			vectorstore.WithCollection(a.Config.QdrantCollection),
			vectorstore.WithLogger(a.Logger),
		)
		if err != nil {
			return nil, fmt.Errorf("open qdrant index: %w", err)
		}
		a.closers = append(a.closers, idx.Close)
		a.Logger.Info("connected to Qdrant", "address", a.Config.QdrantGRPCURL, "collection", a.Config.QdrantCollection)
		return idx, nil

	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", knowledge.ErrConfiguration, a.Config.VectorBackend)
	}
}

// OpenAuditLog connects the interaction store when DATABASE_URL is set and
// creates its schema. Without a URL it does nothing.
func (a *App) OpenAuditLog(ctx context.Context) error {
	if a.Config.DatabaseURL == "" {
		a.Logger.Info("DATABASE_URL not set, interaction audit log disabled")
		return nil
	}
	db, err := postgres.New(ctx, a.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() error { db.Close(); return nil })
	a.Interactions = postgres.NewInteractionRepo(db)
	a.Logger.Info("connected to PostgreSQL")
	return nil
}

// Sessions returns the session token manager, or nil when JWT_SECRET is
// empty.
func (a *App) Sessions() *auth.JWTManager {
	if a.Config.JWTSecret == "" {
		return nil
	}
	jc := auth.DefaultJWTConfig(a.Config.JWTSecret)
	jc.Expiry = a.Config.JWTExpiry
	return auth.NewJWTManager(jc)
}

// Authenticator returns the API guard, or nil when AUTH_ENABLED is false.
func (a *App) Authenticator(sessions *auth.JWTManager) *auth.Authenticator {
	if !a.Config.AuthEnabled {
		return nil
	}
	return auth.NewAuthenticator(a.Config.APIKeys, sessions, a.Logger)
}

// Ready reports whether the index can serve and, when configured, whether
// the audit database answers.
func (a *App) Ready(ctx context.Context) error {
	err := a.Service.Health(ctx)
	if a.db != nil {
		if dbErr := a.db.Ping(ctx); dbErr != nil {
			err = errors.Join(err, fmt.Errorf("audit database: %w", dbErr))
		}
	}
	return err
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("error closing resource", "error", err)
		}
	}
	a.closers = nil
}
