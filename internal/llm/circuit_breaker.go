package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejects
// extraction requests to prevent hammering a failing model provider.
var ErrCircuitOpen = errors.New("extraction circuit breaker is open")

// BreakerConfig holds the circuit breaker configuration for the extraction
// model.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the
	// circuit. Default: 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing a test
	// request. Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required in
	// half-open state to close the circuit. Default: 2.
	HalfOpenMaxSuccesses uint32
}

func (c *BreakerConfig) applyDefaults() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenMaxSuccesses == 0 {
		c.HalfOpenMaxSuccesses = 2
	}
}

// BreakerExtractionModel wraps an ExtractionModel with a gobreaker circuit
// breaker. Extraction is advisory and the pipeline tolerates its absence, so
// tripping the breaker trades completeness for stability when the model
// provider is down.
type BreakerExtractionModel struct {
	inner   ExtractionModel
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps model in a circuit breaker. A zero-valued config gets
// defaults (3 failures, 30s open, 2 half-open successes).
func WithBreaker(model ExtractionModel, cfg BreakerConfig) *BreakerExtractionModel {
	cfg.applyDefaults()

	settings := gobreaker.Settings{
		Name:        "extraction-model",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}

	return &BreakerExtractionModel{
		inner:   model,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Extract runs the wrapped model through the circuit breaker.
// Returns ErrCircuitOpen without calling the provider when the circuit is open.
func (b *BreakerExtractionModel) Extract(ctx context.Context, text, context_ string) (*types.ExtractionResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Extract(ctx, text, context_)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.(*types.ExtractionResult), nil
}

// Model returns the wrapped model name.
func (b *BreakerExtractionModel) Model() string {
	return b.inner.Model()
}

// State returns the current breaker state: "closed", "open" or "half-open".
func (b *BreakerExtractionModel) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
