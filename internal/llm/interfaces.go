// Package llm provides the external collaborator interfaces of the memory
// subsystem (embedding generation and model-based entity extraction) plus
// HTTP clients for Ollama and OpenAI, a circuit breaker around the extraction
// model, and client-side rate limiting.
package llm

import (
	"context"

	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// EmbeddingGenerator converts text to a fixed-length vector.
// Failures propagate to the caller as store/retrieval failures; the vector
// store degrades retrieval errors to empty results.
type EmbeddingGenerator interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the width of the vectors this generator produces.
	Dimensions() int

	// Ready reports whether the provider is reachable and the model loaded.
	Ready(ctx context.Context) bool
}

// ExtractionModel extracts candidate entities and relationships from
// unstructured text. It is the only extractor permitted to fail
// non-deterministically: the pipeline merges its output through the same
// deduplication path as the rule-based extractors and continues without it
// when it is unavailable.
type ExtractionModel interface {
	// Extract returns entities and relationships found in text. The optional
	// context string carries surrounding conversational context.
	Extract(ctx context.Context, text, context_ string) (*types.ExtractionResult, error)

	// Model returns the configured model name.
	Model() string
}
