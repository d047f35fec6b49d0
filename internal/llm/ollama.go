package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name to use (embedding or generation depending on client)
	Model string

	// Dimensions is the embedding width the model produces (default: 768,
	// matching nomic-embed-text)
	Dimensions int

	// Timeout is the per-request timeout (default: 30s)
	Timeout time.Duration

	// RequestsPerSecond caps outgoing calls; 0 disables limiting
	RequestsPerSecond float64
}

func (c *OllamaConfig) applyDefaults(defaultModel string) {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Dimensions == 0 {
		c.Dimensions = 768
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

func newLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// OllamaEmbeddingClient implements EmbeddingGenerator against the Ollama
// /api/embed endpoint.
type OllamaEmbeddingClient struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	limiter    *rate.Limiter
}

// NewOllamaEmbeddingClient creates an embedding client. Defaults:
// http://localhost:11434, nomic-embed-text, 768 dimensions.
func NewOllamaEmbeddingClient(cfg OllamaConfig) *OllamaEmbeddingClient {
	cfg.applyDefaults("nomic-embed-text")
	return &OllamaEmbeddingClient{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    newLimiter(cfg.RequestsPerSecond),
	}
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// The embeddings field is a 2D array; we always use the first embedding.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding vector for text.
func (c *OllamaEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode embed request: %w", err)
	}

	var resp ollamaEmbedResponse
	if err := c.post(ctx, "/api/embed", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding for model %s", c.model)
	}
	return resp.Embeddings[0], nil
}

// Dimensions returns the configured embedding width.
func (c *OllamaEmbeddingClient) Dimensions() int {
	return c.dimensions
}

// Ready reports whether the Ollama server answers /api/tags.
func (c *OllamaEmbeddingClient) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *OllamaEmbeddingClient) post(ctx context.Context, path string, body []byte, out any) error {
	return ollamaPost(ctx, c.client, c.baseURL+path, body, out)
}

// OllamaExtractionModel implements ExtractionModel against the Ollama
// /api/generate endpoint with JSON-format output.
type OllamaExtractionModel struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewOllamaExtractionModel creates an extraction model client.
// Defaults: http://localhost:11434, qwen2.5:7b.
func NewOllamaExtractionModel(cfg OllamaConfig) *OllamaExtractionModel {
	cfg.applyDefaults("qwen2.5:7b")
	return &OllamaExtractionModel{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: newLimiter(cfg.RequestsPerSecond),
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Extract asks the model for entities and relationships in text.
func (m *OllamaExtractionModel) Extract(ctx context.Context, text, context_ string) (*types.ExtractionResult, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  m.model,
		Prompt: extractionPrompt(text, context_),
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode generate request: %w", err)
	}

	var resp ollamaGenerateResponse
	if err := ollamaPost(ctx, m.client, m.baseURL+"/api/generate", body, &resp); err != nil {
		return nil, err
	}

	return parseExtractionResponse(resp.Response)
}

// Model returns the configured model name.
func (m *OllamaExtractionModel) Model() string {
	return m.model
}

func ollamaPost(ctx context.Context, client *http.Client, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama: unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode response: %w", err)
	}
	return nil
}
