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

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig holds OpenAI client configuration.
type OpenAIConfig struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// Model is the model name (embedding or chat depending on client)
	Model string

	// Dimensions is the embedding width (default: 1536, matching
	// text-embedding-3-small)
	Dimensions int

	// BaseURL overrides the API endpoint (useful for proxies and tests)
	BaseURL string

	// Timeout is the per-request timeout (default: 30s)
	Timeout time.Duration

	// RequestsPerSecond caps outgoing calls; 0 disables limiting
	RequestsPerSecond float64
}

func (c *OpenAIConfig) applyDefaults(defaultModel string) {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Dimensions == 0 {
		c.Dimensions = 1536
	}
	if c.BaseURL == "" {
		c.BaseURL = openAIBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// OpenAIEmbeddingClient implements EmbeddingGenerator against /v1/embeddings.
type OpenAIEmbeddingClient struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	client     *http.Client
	limiter    *rate.Limiter
}

// NewOpenAIEmbeddingClient creates an embedding client.
// Default model: text-embedding-3-small (1536 dimensions).
func NewOpenAIEmbeddingClient(cfg OpenAIConfig) *OpenAIEmbeddingClient {
	cfg.applyDefaults("text-embedding-3-small")
	return &OpenAIEmbeddingClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		baseURL:    cfg.BaseURL,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    newLimiter(cfg.RequestsPerSecond),
	}
}

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(openAIEmbedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("openai: encode embed request: %w", err)
	}

	var resp openAIEmbedResponse
	if err := c.post(ctx, "/embeddings", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai: empty embedding for model %s", c.model)
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions returns the configured embedding width.
func (c *OpenAIEmbeddingClient) Dimensions() int {
	return c.dimensions
}

// Ready reports whether an API key is configured. OpenAI has no cheap
// health endpoint, so readiness is a local check only.
func (c *OpenAIEmbeddingClient) Ready(ctx context.Context) bool {
	return c.apiKey != ""
}

func (c *OpenAIEmbeddingClient) post(ctx context.Context, path string, body []byte, out any) error {
	return openAIPost(ctx, c.client, c.apiKey, c.baseURL+path, body, out)
}

// OpenAIExtractionModel implements ExtractionModel against /v1/chat/completions.
type OpenAIExtractionModel struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAIExtractionModel creates an extraction model client.
// Default model: gpt-4o-mini.
func NewOpenAIExtractionModel(cfg OpenAIConfig) *OpenAIExtractionModel {
	cfg.applyDefaults("gpt-4o-mini")
	return &OpenAIExtractionModel{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: newLimiter(cfg.RequestsPerSecond),
	}
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// Extract asks the model for entities and relationships in text.
func (m *OpenAIExtractionModel) Extract(ctx context.Context, text, context_ string) (*types.ExtractionResult, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(openAIChatRequest{
		Model: m.model,
		Messages: []openAIMessage{
			{Role: "user", Content: extractionPrompt(text, context_)},
		},
		ResponseFormat: &openAIFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: encode chat request: %w", err)
	}

	var resp openAIChatResponse
	if err := openAIPost(ctx, m.client, m.apiKey, m.baseURL+"/chat/completions", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in chat response")
	}

	return parseExtractionResponse(resp.Choices[0].Message.Content)
}

// Model returns the configured model name.
func (m *OpenAIExtractionModel) Model() string {
	return m.model
}

func openAIPost(ctx context.Context, client *http.Client, apiKey, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("openai: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("openai: unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}
