// Package llm provides interfaces and implementations for Large Language Model clients.
//
// Failures are reported with the knowledge.ErrLLM* sentinels so callers can
// tell a timeout from a rate limit or an authentication problem.
package llm

import (
	"context"
)

// GenerateOptions configures the LLM generation request.
type GenerateOptions struct {
	// Model specifies the LLM model to use (e.g., "llama3.2", "mistral").
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness in generation (0.0 = deterministic, 1.0 = creative).
	Temperature float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int
}

// Generation is a completed LLM response.
type Generation struct {
	Text             string
	FinishReason     string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens returns prompt plus completion tokens.
func (g *Generation) TotalTokens() int {
	return g.PromptTokens + g.CompletionTokens
}

// LLM defines the interface for Large Language Model clients.
type LLM interface {
	// Generate sends a prompt to the LLM and returns the complete response.
	// It blocks until the full response is received, ctx is done, or an
	// error occurs.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Generation, error)
}
