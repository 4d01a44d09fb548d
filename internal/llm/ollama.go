package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

const (
	// DefaultOllamaBaseURL is the default Ollama API endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultModel is the default LLM model to use.
	DefaultModel = "llama3.2"

	// DefaultTimeout bounds a single generation request.
	DefaultTimeout = 30 * time.Second
)

// OllamaClient implements the LLM interface using the Ollama API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	model      string
	apiKey     string
}

// OllamaOption is a functional option for configuring OllamaClient.
type OllamaOption func(*OllamaClient)

// WithBaseURL sets a custom base URL for the Ollama API.
func WithBaseURL(url string) OllamaOption {
	return func(c *OllamaClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(c *OllamaClient) {
		c.httpClient = client
	}
}

// WithModel sets the default model for the client.
func WithModel(model string) OllamaOption {
	return func(c *OllamaClient) {
		c.model = model
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) OllamaOption {
	return func(c *OllamaClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithAPIKey sends the key as a bearer token, for hosted Ollama-compatible endpoints.
func WithAPIKey(key string) OllamaOption {
	return func(c *OllamaClient) {
		c.apiKey = key
	}
}

// NewOllamaClient creates a new Ollama LLM client with the given options.
func NewOllamaClient(opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		baseURL:    DefaultOllamaBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		model:      DefaultModel,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

// Generate sends a prompt to Ollama and returns the complete response.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Generation, error) {
	req, err := c.buildRequest(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", knowledge.ErrLLMService, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, string(body))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, classifyTransportError(fmt.Errorf("decoding response: %w", err))
	}

	finish := result.DoneReason
	if finish == "" && result.Done {
		finish = "stop"
	}

	return &Generation{
		Text:             result.Response,
		FinishReason:     finish,
		Model:            result.Model,
		PromptTokens:     result.PromptEvalCount,
		CompletionTokens: result.EvalCount,
	}, nil
}

func (c *OllamaClient) buildRequest(ctx context.Context, prompt string, opts GenerateOptions) (*http.Request, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	reqBody := ollamaRequest{
		Model:  model,
		Prompt: prompt,
		System: opts.SystemPrompt,
	}

	options := make(map[string]any)
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		reqBody.Options = options
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return req, nil
}

func statusError(code int, body string) error {
	detail := fmt.Errorf("ollama API error (status %d): %s", code, strings.TrimSpace(body))
	switch code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", knowledge.ErrLLMRateLimited, detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", knowledge.ErrLLMAuth, detail)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", knowledge.ErrLLMTimeout, detail)
	default:
		return fmt.Errorf("%w: %w", knowledge.ErrLLMService, detail)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", knowledge.ErrLLMTimeout, err)
	}
	return fmt.Errorf("%w: %w", knowledge.ErrLLMService, err)
}

var _ LLM = (*OllamaClient)(nil)
