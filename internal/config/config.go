// Package config loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// Vector index backends.
const (
	BackendQdrant  = "qdrant"
	BackendChromem = "chromem"
)

// Config holds all configuration for the FAQ service
type Config struct {
	// Server
	GRPCPort       int      `env:"GRPC_PORT" envDefault:"9090"`
	HTTPPort       int      `env:"HTTP_PORT" envDefault:"8080"`
	Environment    string   `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"json"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// PostgreSQL audit log; empty disables it
	DatabaseURL string `env:"DATABASE_URL"`

	// Vector index
	VectorBackend      string `env:"VECTOR_BACKEND" envDefault:"qdrant"`
	QdrantGRPCURL      string `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`
	QdrantCollection   string `env:"QDRANT_COLLECTION" envDefault:"mutual_funds_faq"`
	ChromemPersistPath string `env:"CHROMEM_PERSIST_PATH" envDefault:"data/chromem"`

	// Ollama
	OllamaURL            string  `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbeddingModel string  `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	OllamaLLMModel       string  `env:"OLLAMA_LLM_MODEL" envDefault:"llama3.2"`
	OllamaAPIKey         string  `env:"OLLAMA_API_KEY"`
	EmbeddingCacheSize   int     `env:"EMBEDDING_CACHE_SIZE" envDefault:"1024"`
	LLMTemperature       float32 `env:"LLM_TEMPERATURE" envDefault:"0.1"`
	LLMMaxTokens         int     `env:"LLM_MAX_TOKENS" envDefault:"500"`

	// Pipeline
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	TopK                int           `env:"RAG_TOP_K" envDefault:"5"`
	SimilarityThreshold float64       `env:"RAG_SIMILARITY_THRESHOLD" envDefault:"0.5"`
	ContextMaxTokens    int           `env:"CONTEXT_MAX_TOKENS" envDefault:"2000"`
	MaxQueryLength      int           `env:"MAX_QUERY_LENGTH" envDefault:"1000"`
	FirstPartyBaseURL   string        `env:"FIRST_PARTY_BASE_URL" envDefault:"https://groww.in"`
	SourceTablePath     string        `env:"SOURCE_TABLE_PATH" envDefault:"config/source_mappings.yaml"`
	GuardrailTablePath  string        `env:"GUARDRAIL_TABLE_PATH"`

	// Auth
	AuthEnabled bool          `env:"AUTH_ENABLED" envDefault:"false"`
	APIKeys     []string      `env:"API_KEYS" envSeparator:","`
	JWTSecret   string        `env:"JWT_SECRET" envDefault:"change-this-in-production"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", knowledge.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.HTTPPort > 0 && c.HTTPPort < 65536, "HTTP_PORT out of range: %d", c.HTTPPort)
	check(c.GRPCPort > 0 && c.GRPCPort < 65536, "GRPC_PORT out of range: %d", c.GRPCPort)
	check(c.VectorBackend == BackendQdrant || c.VectorBackend == BackendChromem,
		"VECTOR_BACKEND must be %q or %q, got %q", BackendQdrant, BackendChromem, c.VectorBackend)
	check(c.TopK > 0, "RAG_TOP_K must be positive, got %d", c.TopK)
	check(c.SimilarityThreshold >= 0 && c.SimilarityThreshold <= 1,
		"RAG_SIMILARITY_THRESHOLD must be within [0,1], got %g", c.SimilarityThreshold)
	check(c.ContextMaxTokens > 0, "CONTEXT_MAX_TOKENS must be positive, got %d", c.ContextMaxTokens)
	check(c.MaxQueryLength > 0, "MAX_QUERY_LENGTH must be positive, got %d", c.MaxQueryLength)
	check(c.RequestTimeout > 0, "REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	check(c.LLMTemperature >= 0 && c.LLMTemperature <= 2, "LLM_TEMPERATURE must be within [0,2], got %g", c.LLMTemperature)
	check(c.LLMMaxTokens > 0, "LLM_MAX_TOKENS must be positive, got %d", c.LLMMaxTokens)
	check(c.OllamaURL != "", "OLLAMA_URL is required")
	if c.AuthEnabled {
		check(len(c.APIKeys) > 0 || c.JWTSecret != "", "AUTH_ENABLED requires API_KEYS or JWT_SECRET")
		check(c.JWTExpiry > 0, "JWT_EXPIRY must be positive, got %s", c.JWTExpiry)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", knowledge.ErrConfiguration, err)
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
