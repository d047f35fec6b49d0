package llm

import (
	"fmt"
	"time"
)

// ProviderConfig selects and configures a provider pair. The composition
// root maps the application config onto this.
type ProviderConfig struct {
	// Provider is "ollama" or "openai"
	Provider string

	// Ollama settings
	BaseURL string

	// OpenAI settings
	APIKey string

	// Model is the model name for the client being built
	Model string

	// Dimensions is the embedding width (embedding clients only)
	Dimensions int

	Timeout           time.Duration
	RequestsPerSecond float64
}

// NewEmbeddingGenerator builds an embedding client for the configured
// provider.
func NewEmbeddingGenerator(cfg ProviderConfig) (EmbeddingGenerator, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaEmbeddingClient(OllamaConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm: openai embedding provider requires an API key")
		}
		return NewOpenAIEmbeddingClient(OpenAIConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	default:
		return nil, fmt.Errorf("llm: unknown embedding provider %q", cfg.Provider)
	}
}

// NewExtractionModel builds an extraction model client for the configured
// provider, wrapped in the circuit breaker. Returns (nil, nil) when provider
// is "none": the extraction pipeline runs rule-based only.
func NewExtractionModel(cfg ProviderConfig) (ExtractionModel, error) {
	var inner ExtractionModel
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "", "ollama":
		inner = NewOllamaExtractionModel(OllamaConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm: openai extraction provider requires an API key")
		}
		inner = NewOpenAIExtractionModel(OpenAIConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("llm: unknown extraction provider %q", cfg.Provider)
	}

	return WithBreaker(inner, BreakerConfig{}), nil
}
